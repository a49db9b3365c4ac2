package migration

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
)

var (
	ErrAlreadyRegistered = errors.New("migration already registered")
	ErrInvalidKey        = errors.New("invalid migration key")
)

// Registry maps version labels (v1, v2, ...) to migrations.
type Registry struct {
	lock       sync.RWMutex
	migrations map[string]Migration
}

func NewRegistry() *Registry {
	return &Registry{
		migrations: map[string]Migration{},
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process wide registry populated by Register and MustRegister.
func Default() *Registry {
	return defaultRegistry
}

func Register(key string, m Migration) error {
	return defaultRegistry.Register(key, m)
}

func MustRegister(key string, m Migration) {
	err := Register(key, m)
	if err != nil {
		panic(err)
	}
}

// Register stores m under key. The migration itself is validated when it is loaded for execution,
// so a broken script fails the run that needs it rather than the process start.
func (r *Registry) Register(key string, m Migration) (err error) {
	if key != strings.ToLower(strings.TrimSpace(key)) {
		err = fmt.Errorf("%w '%s': must be lower case without spaces", ErrInvalidKey, key)
		return
	}

	if err = validator.Var(key, "required,versionlabel"); err != nil {
		err = fmt.Errorf("%w '%s': %s", ErrInvalidKey, key, err)
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, exist := r.migrations[key]; exist {
		err = fmt.Errorf("%w '%s'", ErrAlreadyRegistered, key)
		return
	}

	r.migrations[key] = m
	return
}

func (r *Registry) Lookup(key string) (Migration, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	m, ok := r.migrations[key]
	return m, ok
}

func (r *Registry) Has(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Keys returns every registered label sorted by ordinal.
func (r *Registry) Keys() []string {
	r.lock.RLock()
	keys := make([]string, 0, len(r.migrations))
	for k := range r.migrations {
		keys = append(keys, k)
	}
	r.lock.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return ordinal(keys[i]) < ordinal(keys[j])
	})

	return keys
}

func ordinal(key string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(key, "v"))
	return n
}
