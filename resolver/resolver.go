package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	bolt "github.com/boltdb/bolt"
	log "github.com/inconshreveable/log15"
	dbpkg "github.com/openrelayxyz/cardinal-dbi/db"
	"github.com/openrelayxyz/cardinal-dbi/db/badgerdb"
	"github.com/openrelayxyz/cardinal-dbi/db/boltdb"
	"github.com/openrelayxyz/cardinal-dbi/db/lmdb"
	"github.com/openrelayxyz/cardinal-dbi/db/mem"
	"github.com/openrelayxyz/cardinal-dbi/db/pebbledb"
)

var ErrUnknownScheme = errors.New("unknown database scheme")

const memReaders = 64

// ResolveDatabase opens the database described by uri. Recognised forms are
//
//	mem://
//	lmdb://<path>?mapsize=<bytes>&maxdbs=<n>&nosubdir=1&readonly=1
//	bolt://<path>?readonly=1
//	badger://<path>?readonly=1   (empty path is in-memory)
//	pebble://<path>?readonly=1   (empty path is in-memory)
//
// Anything without a scheme is a filesystem path: a directory opens with
// badger, anything else with bolt.
func ResolveDatabase(uri string) (dbpkg.Database, error) {
	if !strings.Contains(uri, "://") {
		return resolvePath(uri)
	}
	parsedURL, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	// net/url puts the first path segment in Host when there is no leading
	// slash, so put them back together.
	path := parsedURL.Host + parsedURL.Path
	query := parsedURL.Query()
	readOnly := query.Get("readonly") == "1"
	log.Debug("Resolving database", "scheme", parsedURL.Scheme, "path", path, "readonly", readOnly)

	switch parsedURL.Scheme {
	case "mem":
		return mem.NewMemoryDatabase(memReaders), nil
	case "lmdb":
		cfg := lmdb.DefaultConfig()
		if v := query.Get("mapsize"); v != "" {
			if cfg.MapSize, err = strconv.ParseInt(v, 10, 64); err != nil {
				return nil, fmt.Errorf("invalid mapsize %q: %w", v, err)
			}
		}
		if v := query.Get("maxdbs"); v != "" {
			if cfg.MaxDBs, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("invalid maxdbs %q: %w", v, err)
			}
		}
		cfg.NoSubdir = query.Get("nosubdir") == "1"
		cfg.ReadOnly = readOnly
		return lmdb.Open(path, cfg)
	case "bolt":
		return boltdb.Open(path, 0600, &bolt.Options{ReadOnly: readOnly})
	case "badger":
		if readOnly {
			return badgerdb.NewReadOnly(path)
		}
		return badgerdb.New(path)
	case "pebble":
		return pebbledb.Open(path, readOnly)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownScheme, parsedURL.Scheme)
}

func resolvePath(path string) (dbpkg.Database, error) {
	fileInfo, err := os.Stat(path)
	if err == nil && fileInfo.IsDir() {
		return badgerdb.New(path)
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return boltdb.Open(path, 0600, nil)
}
