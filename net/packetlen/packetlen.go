// Package packetlen answers, for a protocol version and packet id, how many
// payload bytes follow the id on the wire.
//
// Protocol versions are 8-digit date codes such as 20120410. They are grouped
// into yearly buckets; each bucket has its own self-contained table, and a
// lookup never falls back to another bucket.
package packetlen

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	tnet "badc0de.net/pkg/go-ragnarok/net"
)

// ErrVersionUnresolved is returned when no bucket covers a protocol version.
// It is fatal: no connection may be attempted without a length table.
var ErrVersionUnresolved = errors.New("packetlen: protocol version unresolved")

// Bucket is a version range, starting at Threshold, and the loader producing
// its length table. Loaders receive the exact version so that a bucket may vary
// slightly within its range.
type Bucket struct {
	Threshold int
	Load      func(version int) map[uint16]int
}

// Table maps packet ids to payload lengths for one protocol version. It is
// immutable once built.
type Table struct {
	Version   int
	Threshold int

	lengths map[uint16]int
}

// NewTable builds a table from the passed lengths. The map is copied.
func NewTable(version, threshold int, lengths map[uint16]int) *Table {
	t := &Table{
		Version:   version,
		Threshold: threshold,
		lengths:   make(map[uint16]int, len(lengths)),
	}
	for id, n := range lengths {
		t.lengths[id] = n
	}
	return t
}

// Length returns the payload length of id, tnet.Variable for ids carrying an
// explicit length, and ok == false for ids unknown to this table.
func (t *Table) Length(id uint16) (int, bool) {
	n, ok := t.lengths[id]
	return n, ok
}

// Len returns the number of known ids.
func (t *Table) Len() int {
	return len(t.lengths)
}

// Select returns the bucket with the greatest threshold not above version.
// Buckets must be sorted by ascending threshold.
func Select(buckets []Bucket, version int) (Bucket, error) {
	if version < 10000000 || version > 99999999 {
		return Bucket{}, errors.Wrapf(ErrVersionUnresolved, "version %d is not a date code", version)
	}
	i := sort.Search(len(buckets), func(i int) bool {
		return buckets[i].Threshold > version
	})
	if i == 0 {
		return Bucket{}, errors.Wrapf(ErrVersionUnresolved, "no bucket at or below %d", version)
	}
	return buckets[i-1], nil
}

// Cache loads tables on first use and keeps them for the rest of the session.
// Concurrent loads of the same version share one loader run.
type Cache struct {
	buckets []Bucket

	group singleflight.Group

	mu     sync.Mutex
	tables map[int]*Table
}

// NewCache creates a cache over the passed buckets, which are sorted by
// threshold if they are not already.
func NewCache(buckets []Bucket) *Cache {
	b := append([]Bucket(nil), buckets...)
	sort.SliceStable(b, func(i, j int) bool { return b[i].Threshold < b[j].Threshold })
	return &Cache{
		buckets: b,
		tables:  make(map[int]*Table),
	}
}

// Load returns the table for version, running the bucket's loader in the
// background the first time. It returns early if ctx is done first; the load
// itself keeps running and its result is cached.
func (c *Cache) Load(ctx context.Context, version int) (*Table, error) {
	bucket, err := Select(c.buckets, version)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	t, ok := c.tables[version]
	c.mu.Unlock()
	if ok {
		return t, nil
	}

	ch := c.group.DoChan(strconv.Itoa(version), func() (interface{}, error) {
		lengths := bucket.Load(version)
		if err := validate(lengths); err != nil {
			return nil, errors.Wrapf(err, "loading bucket %d for version %d", bucket.Threshold, version)
		}
		t := NewTable(version, bucket.Threshold, lengths)

		c.mu.Lock()
		c.tables[version] = t
		c.mu.Unlock()

		glog.Infof("packet length table initialized for version %d (bucket %d, %d ids)", version, bucket.Threshold, t.Len())
		return t, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Table), nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "loading packet length table for version %d", version)
	}
}

func validate(lengths map[uint16]int) error {
	for id, n := range lengths {
		if n < 0 && n != tnet.Variable {
			return fmt.Errorf("packet 0x%04x has invalid length %d", id, n)
		}
	}
	return nil
}
