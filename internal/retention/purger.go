package retention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fintrack/fintrack/internal/storage"
)

// DefaultTimeField is the JSON field read from timestamped entries.
const DefaultTimeField = "timestamp"

// PurgeResult is what one purger removed.
type PurgeResult struct {
	ItemsDeleted int
	BytesFreed   int64
}

// Purger deletes data older than a cutoff from one data category.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (PurgeResult, error)
}

// PurgerFunc adapts a function to Purger.
type PurgerFunc func(ctx context.Context, cutoff time.Time) (PurgeResult, error)

// Purge calls f.
func (f PurgerFunc) Purge(ctx context.Context, cutoff time.Time) (PurgeResult, error) {
	return f(ctx, cutoff)
}

// ListPurger truncates a JSON array of timestamped entries stored under one key.
type ListPurger struct {
	Store     storage.Store
	Key       string
	TimeField string
}

// Purge removes entries older than cutoff and rewrites the list.
// Entries without a readable timestamp are kept.
func (p *ListPurger) Purge(ctx context.Context, cutoff time.Time) (PurgeResult, error) {
	raw, err := p.Store.Get(ctx, p.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return PurgeResult{}, nil
	}
	if err != nil {
		return PurgeResult{}, fmt.Errorf("read %s: %w", p.Key, err)
	}

	var entries []map[string]interface{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return PurgeResult{}, fmt.Errorf("decode %s: %w", p.Key, err)
	}

	kept := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		if ts, ok := entryTime(entry, fieldOr(p.TimeField)); ok && ts.Before(cutoff) {
			continue
		}
		kept = append(kept, entry)
	}
	if len(kept) == len(entries) {
		return PurgeResult{}, nil
	}

	out, err := json.Marshal(kept)
	if err != nil {
		return PurgeResult{}, err
	}
	if err := p.Store.Set(ctx, p.Key, out); err != nil {
		return PurgeResult{}, fmt.Errorf("write %s: %w", p.Key, err)
	}
	return PurgeResult{
		ItemsDeleted: len(entries) - len(kept),
		BytesFreed:   int64(len(raw) - len(out)),
	}, nil
}

// PrefixPurger deletes keys under a prefix whose JSON value carries a
// timestamp older than the cutoff.
type PrefixPurger struct {
	Store     storage.Store
	Prefix    string
	TimeField string
}

// Purge deletes expired keys. Values that are not timestamped JSON objects are kept.
func (p *PrefixPurger) Purge(ctx context.Context, cutoff time.Time) (PurgeResult, error) {
	keys, err := p.Store.Keys(ctx, p.Prefix)
	if err != nil {
		return PurgeResult{}, fmt.Errorf("list %s*: %w", p.Prefix, err)
	}

	var res PurgeResult
	var errs []error
	for _, key := range keys {
		raw, err := p.Store.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", key, err))
			continue
		}

		var entry map[string]interface{}
		if json.Unmarshal(raw, &entry) != nil {
			continue
		}
		ts, ok := entryTime(entry, fieldOr(p.TimeField))
		if !ok || !ts.Before(cutoff) {
			continue
		}

		if err := p.Store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
			continue
		}
		res.ItemsDeleted++
		res.BytesFreed += int64(len(raw))
	}
	return res, errors.Join(errs...)
}

// DirPurger deletes regular files in Dir last modified before the cutoff.
type DirPurger struct {
	Dir string
}

// Purge removes expired files. A missing directory holds nothing to purge.
func (p *DirPurger) Purge(_ context.Context, cutoff time.Time) (PurgeResult, error) {
	entries, err := os.ReadDir(p.Dir)
	if os.IsNotExist(err) {
		return PurgeResult{}, nil
	}
	if err != nil {
		return PurgeResult{}, fmt.Errorf("read %s: %w", p.Dir, err)
	}

	var res PurgeResult
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(p.Dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		res.ItemsDeleted++
		res.BytesFreed += info.Size()
	}
	return res, errors.Join(errs...)
}

func fieldOr(field string) string {
	if field == "" {
		return DefaultTimeField
	}
	return field
}

// entryTime reads an RFC 3339 string or a Unix millisecond number.
func entryTime(entry map[string]interface{}, field string) (time.Time, bool) {
	switch v := entry[field].(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts, true
		}
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms), true
		}
	case float64:
		return time.UnixMilli(int64(v)), true
	}
	return time.Time{}, false
}
