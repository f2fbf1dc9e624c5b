package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ehr/claimsdb/internal/platform/apperr"
	"github.com/ehr/claimsdb/internal/platform/cache"
)

// Vocabulary answers "is this code known" for the lookup tables. Each kind
// is held in memory for ttl and optionally shared between instances
// through the Redis cache. A code that is absent from a loaded set
// triggers a reload from the database before it is rejected, so codes
// added by another instance are picked up without waiting for the TTL.
// Reloads on a miss happen at most once per missRefresh for each kind, and
// a code still absent after a reload is remembered as unknown until the set
// expires or is invalidated.
type Vocabulary struct {
	repo        LookupRepository
	cache       *cache.Cache
	ttl         time.Duration
	missRefresh time.Duration
	log         zerolog.Logger
	now         func() time.Time

	mu   sync.RWMutex
	sets map[LookupKind]vocabSet
}

// DefaultMissRefresh bounds how often an unknown code may force a reload.
const DefaultMissRefresh = time.Second

type vocabSet struct {
	codes    map[string]struct{}
	misses   map[string]struct{}
	loadedAt time.Time
}

func NewVocabulary(repo LookupRepository, c *cache.Cache, ttl time.Duration, log zerolog.Logger) *Vocabulary {
	if c == nil {
		c = cache.Disabled()
	}
	return &Vocabulary{
		repo:        repo,
		cache:       c,
		ttl:         ttl,
		missRefresh: DefaultMissRefresh,
		log:         log.With().Str("component", "vocabulary").Logger(),
		now:         time.Now,
		sets:        make(map[LookupKind]vocabSet),
	}
}

// Require returns a ReferentialIntegrityError unless code exists in kind.
func (v *Vocabulary) Require(ctx context.Context, kind LookupKind, code string) error {
	ok, err := v.Contains(ctx, kind, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.MissingRef(kind.Entity(), code)
	}
	return nil
}

func (v *Vocabulary) Contains(ctx context.Context, kind LookupKind, code string) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("unknown vocabulary %q", kind)
	}
	set, fresh := v.cached(kind)
	if !fresh {
		var err error
		if set, err = v.load(ctx, kind, true); err != nil {
			return false, err
		}
	}
	if _, ok := set.codes[code]; ok {
		return true, nil
	}
	if v.knownMiss(set, code) {
		return false, nil
	}
	set, err := v.load(ctx, kind, false)
	if err != nil {
		return false, err
	}
	if _, ok := set.codes[code]; ok {
		return true, nil
	}
	v.recordMiss(kind, set, code)
	return false, nil
}

// knownMiss reports whether code should be rejected without a reload.
func (v *Vocabulary) knownMiss(set vocabSet, code string) bool {
	if v.now().Sub(set.loadedAt) < v.missRefresh {
		return true
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := set.misses[code]
	return ok
}

func (v *Vocabulary) recordMiss(kind LookupKind, set vocabSet, code string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.sets[kind]
	if !ok || !cur.loadedAt.Equal(set.loadedAt) {
		return
	}
	cur.misses[code] = struct{}{}
}

// Invalidate drops kinds from memory and from the shared cache.
func (v *Vocabulary) Invalidate(ctx context.Context, kinds ...LookupKind) {
	v.mu.Lock()
	keys := make([]string, 0, len(kinds))
	for _, k := range kinds {
		delete(v.sets, k)
		keys = append(keys, cacheKey(k))
	}
	v.mu.Unlock()
	if err := v.cache.Delete(ctx, keys...); err != nil {
		v.log.Warn().Err(err).Msg("failed to invalidate shared vocabulary cache")
	}
}

func (v *Vocabulary) cached(kind LookupKind) (vocabSet, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	set, ok := v.sets[kind]
	return set, ok && v.now().Sub(set.loadedAt) < v.ttl
}

// load rebuilds the set for kind. When shared is true the Redis copy is
// tried first; a database load always refreshes the Redis copy.
func (v *Vocabulary) load(ctx context.Context, kind LookupKind, shared bool) (vocabSet, error) {
	var codes []string
	if shared {
		err := v.cache.Get(ctx, cacheKey(kind), &codes)
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			v.log.Warn().Err(err).Str("kind", string(kind)).Msg("shared vocabulary cache read failed")
		}
		if err != nil {
			codes = nil
		}
	}
	if codes == nil {
		items, err := v.repo.List(ctx, kind)
		if err != nil {
			return vocabSet{}, fmt.Errorf("load %s vocabulary: %w", kind, err)
		}
		codes = make([]string, 0, len(items))
		for _, it := range items {
			codes = append(codes, it.Code)
		}
		if err := v.cache.Set(ctx, cacheKey(kind), codes, v.ttl); err != nil {
			v.log.Warn().Err(err).Str("kind", string(kind)).Msg("shared vocabulary cache write failed")
		}
	}

	set := vocabSet{
		codes:    make(map[string]struct{}, len(codes)),
		misses:   make(map[string]struct{}),
		loadedAt: v.now(),
	}
	for _, c := range codes {
		set.codes[c] = struct{}{}
	}
	v.mu.Lock()
	v.sets[kind] = set
	v.mu.Unlock()
	v.log.Debug().Str("kind", string(kind)).Int("codes", len(codes)).Msg("vocabulary loaded")
	return set, nil
}

func cacheKey(kind LookupKind) string { return "vocab:" + string(kind) }

// VocabularyFile is the YAML seed format read by `claimsdb vocab load`.
type VocabularyFile struct {
	ProcedureCodes   []Lookup `yaml:"procedure_codes"`
	DiagnosisCodes   []Lookup `yaml:"diagnosis_codes"`
	ClaimStatusCodes []Lookup `yaml:"claim_status_codes"`
}

// ParseVocabulary decodes a seed file. Unknown top-level keys are rejected.
func ParseVocabulary(r io.Reader) (*VocabularyFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f VocabularyFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	return &f, nil
}

// Entries groups the file's lookups by kind.
func (f *VocabularyFile) Entries() map[LookupKind][]Lookup {
	return map[LookupKind][]Lookup{
		ProcedureCodes:   f.ProcedureCodes,
		DiagnosisCodes:   f.DiagnosisCodes,
		ClaimStatusCodes: f.ClaimStatusCodes,
	}
}
