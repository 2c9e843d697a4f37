package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/aiorch/internal/db"
)

// unlinkBatch caps the keys sent in one UNLINK.
const unlinkBatch = 500

// ReplaceHash swaps the hash at key for fields in one pipelined round trip:
// UNLINK, HSET, then PEXPIRE when ttl is positive.
func (s *Store) ReplaceHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	hset := s.b().Hset().Key(key).FieldValue()
	for k, v := range fields {
		hset = hset.FieldValue(k, v)
	}
	cmds := rueidis.Commands{
		s.b().Unlink().Key(key).Build(),
		hset.Build(),
	}
	if ttl > 0 {
		cmds = append(cmds, s.b().Pexpire().Key(key).Milliseconds(ttl.Milliseconds()).Build())
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			op := db.OpHSet
			switch i {
			case 0:
				op = db.OpUnlink
			case 2:
				op = "PEXPIRE"
			}
			return &db.Error{Op: op, Key: key, Err: err}
		}
	}
	return nil
}

// Unlink removes keys in batches without blocking the server and returns how many existed.
func (s *Store) Unlink(ctx context.Context, keys ...string) (int, error) {
	var removed int64
	for start := 0; start < len(keys); start += unlinkBatch {
		end := min(start+unlinkBatch, len(keys))
		n, err := s.do(ctx, s.b().Unlink().Key(keys[start:end]...).Build()).AsInt64()
		if err != nil {
			return int(removed), &db.Error{Op: db.OpUnlink, Err: err}
		}
		removed += n
	}
	return int(removed), nil
}
