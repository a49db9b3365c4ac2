package schemasync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bfbechlin/appwrite-ctl/internal/snapshot"
	"github.com/bfbechlin/appwrite-ctl/pkg/tracer"
	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	"github.com/yusufsyaifudin/ylog"
)

const DefaultBinary = "appwrite"

var (
	DefaultPushArgs = []string{"push", "all", "--all", "--force"}
	DefaultPullArgs = []string{"pull", "all"}
)

// Synchronizer moves a schema snapshot between the local disk and the project.
type Synchronizer interface {
	Push(ctx context.Context, snapshotPath string) error

	// Pull writes the current project schema into destDir and returns the snapshot path.
	Pull(ctx context.Context, destDir string) (string, error)
}

// Commander runs an external program in dir and returns its combined output.
type Commander interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

type execCommander struct{}

func (execCommander) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (execCommander) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

type CLIConfig struct {
	Binary       string    `validate:"-"`
	Endpoint     string    `validate:"required,url"`
	ProjectID    string    `validate:"required"`
	APIKey       string    `validate:"required"`
	SnapshotFile string    `validate:"-"`
	PushArgs     []string  `validate:"-"`
	PullArgs     []string  `validate:"-"`
	Commander    Commander `validate:"-"`
}

// CLI drives the appwrite command line tool. Credentials are configured once per process.
type CLI struct {
	binary       string
	endpoint     string
	projectID    string
	apiKey       string
	snapshotFile string
	pushArgs     []string
	pullArgs     []string
	cmd          Commander

	configureOnce sync.Once
	configureErr  error
}

var _ Synchronizer = (*CLI)(nil)

func NewCLI(cfg CLIConfig) (*CLI, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("schema tool config: %w", err)
	}

	c := &CLI{
		binary:       cfg.Binary,
		endpoint:     cfg.Endpoint,
		projectID:    cfg.ProjectID,
		apiKey:       cfg.APIKey,
		snapshotFile: cfg.SnapshotFile,
		pushArgs:     cfg.PushArgs,
		pullArgs:     cfg.PullArgs,
		cmd:          cfg.Commander,
	}

	if c.binary == "" {
		c.binary = DefaultBinary
	}

	if c.snapshotFile == "" {
		c.snapshotFile = snapshot.FileName
	}

	if len(c.pushArgs) == 0 {
		c.pushArgs = DefaultPushArgs
	}

	if len(c.pullArgs) == 0 {
		c.pullArgs = DefaultPullArgs
	}

	if c.cmd == nil {
		c.cmd = execCommander{}
	}

	return c, nil
}

func (c *CLI) Push(ctx context.Context, snapshotPath string) (err error) {
	ctx, span := tracer.StartSpan(ctx, "schemasync.Push")
	defer span.End()

	if err = c.configure(ctx); err != nil {
		return
	}

	workDir, err := os.MkdirTemp("", "appwrite-ctl-push-")
	if err != nil {
		err = fmt.Errorf("create push work dir: %w", err)
		return
	}
	defer c.removeAll(ctx, workDir)

	if err = copyFile(snapshotPath, filepath.Join(workDir, c.snapshotFile)); err != nil {
		err = fmt.Errorf("stage snapshot %s: %w", snapshotPath, err)
		return
	}

	ylog.Info(ctx, "pushing schema snapshot", ylog.KV("snapshot", snapshotPath))
	return c.run(ctx, "push", workDir, c.pushArgs)
}

func (c *CLI) Pull(ctx context.Context, destDir string) (path string, err error) {
	ctx, span := tracer.StartSpan(ctx, "schemasync.Pull")
	defer span.End()

	if err = c.configure(ctx); err != nil {
		return
	}

	workDir, err := os.MkdirTemp("", "appwrite-ctl-pull-")
	if err != nil {
		err = fmt.Errorf("create pull work dir: %w", err)
		return
	}
	defer c.removeAll(ctx, workDir)

	// the tool expects an existing project file to pull into
	if err = os.WriteFile(filepath.Join(workDir, c.snapshotFile), []byte(fmt.Sprintf(`{"projectId":%q}`, c.projectID)), 0o600); err != nil {
		err = fmt.Errorf("prepare pull work dir: %w", err)
		return
	}

	if err = c.run(ctx, "pull", workDir, c.pullArgs); err != nil {
		return
	}

	path = filepath.Join(destDir, c.snapshotFile)
	if err = copyFile(filepath.Join(workDir, c.snapshotFile), path); err != nil {
		err = fmt.Errorf("copy pulled snapshot to %s: %w", destDir, err)
		path = ""
		return
	}

	ylog.Info(ctx, "pulled schema snapshot", ylog.KV("snapshot", path))
	return
}

// configure points the tool at the project. It runs once; a failure is returned to every later call.
func (c *CLI) configure(ctx context.Context) error {
	c.configureOnce.Do(func() {
		if _, err := c.cmd.LookPath(c.binary); err != nil {
			c.configureErr = fmt.Errorf("%w: %s: %s", ErrToolMissing, c.binary, err)
			return
		}

		args := []string{"client", "--endpoint", c.endpoint, "--project-id", c.projectID, "--key", c.apiKey}
		out, err := c.cmd.Run(ctx, "", c.binary, args...)
		if err != nil {
			// never leak the key into logs or errors
			c.configureErr = &SyncError{Op: "configure", Args: args[:5], Output: redact(string(out), c.apiKey), Err: err}
		}
	})

	return c.configureErr
}

func (c *CLI) run(ctx context.Context, op, dir string, args []string) error {
	out, err := c.cmd.Run(ctx, dir, c.binary, args...)
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrToolMissing, err)
		}

		return &SyncError{Op: op, Args: args, Output: redact(string(out), c.apiKey), Err: err}
	}

	ylog.Debug(ctx, "schema tool output", ylog.KV("op", op), ylog.KV("output", string(out)))
	return nil
}

func (c *CLI) removeAll(ctx context.Context, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		ylog.Warn(ctx, "remove work dir failed", ylog.KV("dir", dir), ylog.KV("error", err))
	}
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}

	return strings.ReplaceAll(s, secret, "***")
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}

	defer func() {
		if _err := out.Close(); _err != nil && err == nil {
			err = _err
		}
	}()

	_, err = io.Copy(out, in)
	return
}
