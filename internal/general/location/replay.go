package location

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"driver-dispatch/internal/domain/geo"
)

var ErrEmptyTrack = errors.New("track file has no points")

// ReplayProvider loops over a recorded track ("lat,lng" per line) at a fixed cadence.
type ReplayProvider struct {
	path     string
	interval time.Duration
}

func NewReplayProvider(path string, interval time.Duration) *ReplayProvider {
	return &ReplayProvider{path: path, interval: interval}
}

func (p *ReplayProvider) Watch(ctx context.Context, onFix func(geo.Sample), onErr func(error)) error {
	points, err := loadTrack(p.path, onErr)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for i := 0; ; i = (i + 1) % len(points) {
		sample, err := geo.NewSample(points[i][0], points[i][1], time.Now())
		if err != nil {
			onErr(fmt.Errorf("track point %d: %w", i+1, err))
		} else {
			onFix(sample)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// loadTrack reads the track file, reporting malformed rows through onErr and skipping them.
func loadTrack(path string, onErr func(error)) ([][2]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open track: %w", err)
	}
	defer f.Close()

	return parseTrack(f, onErr)
}

func parseTrack(r io.Reader, onErr func(error)) ([][2]float64, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var points [][2]float64
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read track: %w", err)
		}
		if len(rec) < 2 {
			onErr(fmt.Errorf("track line %d: want lat,lng", line))
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errLat != nil || errLng != nil {
			// header row or garbage
			onErr(fmt.Errorf("track line %d: not a coordinate pair", line))
			continue
		}
		points = append(points, [2]float64{lat, lng})
	}

	if len(points) == 0 {
		return nil, ErrEmptyTrack
	}
	return points, nil
}
