package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"
)

// ReplayLog replays snapshot rows from r to writer, pacing by ReceivedAt. A
// speed >0 scales playback; speed <= 0 inserts no delay.
func ReplayLog(ctx context.Context, r io.Reader, writer SnapshotWriter, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var (
		prev time.Time
		n    int
	)
	for {
		var row SnapshotRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.ReceivedAt.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				select {
				case <-time.After(diff):
				case <-ctx.Done():
					return n, ctx.Err()
				}
			}
		}
		if err := writer.WriteSnapshot(row); err != nil {
			return n, err
		}
		n++
		prev = row.ReceivedAt
	}
}

// ReplayLogFile opens a file and replays its snapshot rows.
func ReplayLogFile(ctx context.Context, path string, writer SnapshotWriter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, speed)
}
