package resolver

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/inconshreveable/log15"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
)

// Pool keeps recently used sessions open, keyed by their uri. A session
// pushed out of the pool is closed, along with every table bound to it.
type Pool struct {
	cache *lru.Cache
	mut   sync.Mutex
}

func NewPool(size int) (*Pool, error) {
	cache, err := lru.NewWithEvict(size, func(key, value interface{}) {
		if err := value.(*dbpkg.Session).Close(); err != nil {
			log.Warn("Error closing evicted session", "uri", key, "error", err)
			return
		}
		log.Debug("Closed evicted session", "uri", key)
	})
	if err != nil {
		return nil, fmt.Errorf("creating session pool: %w", err)
	}
	return &Pool{cache: cache}, nil
}

// Open returns the pooled session for uri, opening it on first use.
func (p *Pool) Open(uri string) (*dbpkg.Session, error) {
	p.mut.Lock()
	defer p.mut.Unlock()
	if v, ok := p.cache.Get(uri); ok {
		if s := v.(*dbpkg.Session); s.IsOpened() {
			return s, nil
		}
		p.cache.Remove(uri)
	}
	database, err := ResolveDatabase(uri)
	if err != nil {
		return nil, err
	}
	s := dbpkg.NewSession(database)
	p.cache.Add(uri, s)
	return s, nil
}

func (p *Pool) Len() int {
	return p.cache.Len()
}

// Close closes every pooled session.
func (p *Pool) Close() {
	p.mut.Lock()
	defer p.mut.Unlock()
	p.cache.Purge()
}
