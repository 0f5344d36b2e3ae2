package preview

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

// Key identifies a source file by content.
type Key [sha256.Size]byte

func KeyOf(data []byte) Key { return sha256.Sum256(data) }

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

func (k Key) IsZero() bool { return k == Key{} }

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	var k Key
	if hex.DecodedLen(len(s)) != len(k) {
		return k, errors.New("invalid key length")
	}
	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return k, errors.Wrap(err, "invalid key")
	}
	return k, nil
}

type entry struct {
	seq        uint64
	format     raster.Format
	width      int
	height     int
	pix        []byte
	compressed bool
}

// Cache holds decoded rasters so a file can be re-rendered in another
// format or size without decoding it again. When full, the oldest entry is
// evicted.
type Cache struct {
	entries  cmap.ConcurrentMap[Key, *entry]
	seq      atomic.Uint64
	capacity int
	compress bool
}

// NewCache returns a cache of up to capacity rasters. With compress set,
// pixels are held zstd-compressed.
func NewCache(capacity int, compress bool) *Cache {
	return &Cache{
		entries:  cmap.NewStringer[Key, *entry](),
		capacity: capacity,
		compress: compress,
	}
}

func (c *Cache) Put(key Key, f raster.Format, img *raster.Image) {
	if c.capacity <= 0 {
		return
	}
	e := &entry{
		seq:    c.seq.Add(1),
		format: f,
		width:  img.Width,
		height: img.Height,
		pix:    img.Pix,
	}
	if c.compress {
		e.pix = compressZstd(img.Pix)
		e.compressed = true
	}
	c.entries.Set(key, e)
	for c.entries.Count() > c.capacity {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	var oldest Key
	lowest := uint64(math.MaxUint64)
	c.entries.IterCb(func(key Key, e *entry) {
		if e.seq < lowest {
			oldest, lowest = key, e.seq
		}
	})
	logrus.Debugln("evicting cached preview", oldest)
	c.entries.Remove(oldest)
}

// Get returns the cached raster for key. The image must not be modified
// when the cache is uncompressed, since it shares its pixels.
func (c *Cache) Get(key Key) (*raster.Image, raster.Format, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, raster.Unknown, false
	}
	img := &raster.Image{Width: e.width, Height: e.height, Pix: e.pix}
	if e.compressed {
		pix, err := decompressZstdInto(make([]byte, 0, e.width*e.height*4), e.pix)
		if err != nil || len(pix) != e.width*e.height*4 {
			logrus.Warnf("dropping corrupt cached preview %s: %v", key, err)
			c.entries.Remove(key)
			return nil, raster.Unknown, false
		}
		img.Pix = pix
	}
	return img, e.format, true
}

func (c *Cache) Len() int { return c.entries.Count() }

func (c *Cache) Purge() { c.entries.Clear() }
