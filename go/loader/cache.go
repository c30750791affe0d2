package loader

import (
	"encoding/base64"
	"io"
	"sync"

	"github.com/davecgh/go-spew/spew"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/lunixbochs/userprog/go/log"
)

// Cache remembers parsed images by content hash, so repeated execs of the
// same program skip header validation. Mapping still reads the file.
type Cache struct {
	mu sync.RWMutex

	cache *lru.ARCCache
}

func NewCache(size int) (*Cache, error) {
	cache, err := lru.NewARC(size)
	if err != nil {
		return nil, errors.Wrap(err, "lru.NewARC() failed")
	}
	return &Cache{cache: cache}, nil
}

func (c *Cache) Lookup(key string) (*Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return val.(*Image), true
}

func (c *Cache) Set(key string, img *Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, img)
}

func (c *Cache) Len() int {
	return c.cache.Len()
}

// Key hashes the first size bytes of r.
func Key(r io.ReaderAt, size int64) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, size)); err != nil {
		return "", errors.Wrap(err, "hashing executable")
	}
	return base64.URLEncoding.EncodeToString(h.Sum(nil)), nil
}

// Parse is loader.Parse with a cache in front of it. A nil Cache parses
// every time.
func (c *Cache) Parse(r io.ReaderAt, size int64) (*Image, error) {
	if c == nil {
		return Parse(r, size)
	}
	key, err := Key(r, size)
	if err != nil {
		return nil, err
	}
	if img, ok := c.Lookup(key); ok {
		log.L.Trace("image cache hit", "key", key)
		return img, nil
	}
	img, err := Parse(r, size)
	if err != nil {
		return nil, err
	}
	if log.L.IsTrace() {
		log.L.Trace("image-cached", "key", key, "image", spew.Sdump(img))
	}
	c.Set(key, img)
	return img, nil
}
