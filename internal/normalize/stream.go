package normalize

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/miradorstack/fleetwatch/internal/models"
	"github.com/miradorstack/fleetwatch/internal/utils"
)

// NoiseFloor is the minimum reading, exclusive, both channels of a row must exceed.
const NoiseFloor = 0.02

// DefaultChunkSize is the number of raw rows normalized per chunk.
const DefaultChunkSize = 4096

// Required header columns.
const (
	ColOperDatetime = "oper_datetime"
	ColFleetID      = "fleet_id"
	ColCar1Value    = "car1_value"
	ColCar8Value    = "car8_value"
)

// Option configures a Stream.
type Option func(*Stream)

// WithChunkSize bounds the number of raw rows held per chunk.
func WithChunkSize(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithDelimiter overrides the field delimiter, which defaults to a comma.
func WithDelimiter(d rune) Option {
	return func(s *Stream) {
		if d != 0 {
			s.delimiter = d
		}
	}
}

// Stream is a lazy, re-iterable sequence of normalized measurements.
// Nothing is read until a pass starts, and each pass re-opens the source.
type Stream struct {
	src       Source
	chunkSize int
	delimiter rune
}

// Scan prepares a lazy measurement stream over src.
func Scan(src Source, opts ...Option) *Stream {
	s := &Stream{src: src, chunkSize: DefaultChunkSize, delimiter: ','}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the underlying source.
func (s *Stream) Name() string {
	return s.src.Name()
}

// ChunkSize returns the configured number of raw rows per chunk.
func (s *Stream) ChunkSize() int {
	return s.chunkSize
}

// Chunks walks the source once and hands each normalized chunk to fn.
// Every chunk is a freshly allocated slice that fn may retain but must not modify.
func (s *Stream) Chunks(ctx context.Context, fn func([]models.Measurement) error) error {
	rc, err := s.src.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", s.src.Name(), err)
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.Comma = s.delimiter
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyInput
		}
		return fmt.Errorf("read header: %w", err)
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return err
	}

	chunk := make([]models.Measurement, 0, 2*s.chunkSize)
	rows := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		line, _ := r.FieldPos(0)
		if allEmpty(record) {
			continue
		}

		raw, err := cols.raw(record, line)
		if err != nil {
			return err
		}
		pair, keep, err := Normalize(raw, line)
		if err != nil {
			return err
		}
		if keep {
			chunk = append(chunk, pair[0], pair[1])
		}

		rows++
		if rows == s.chunkSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(chunk) > 0 {
				if err := fn(chunk); err != nil {
					return err
				}
			}
			chunk = make([]models.Measurement, 0, 2*s.chunkSize)
			rows = 0
		}
	}

	if len(chunk) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(chunk)
	}
	return nil
}

// Collect materializes the whole stream in source order.
func (s *Stream) Collect(ctx context.Context) ([]models.Measurement, error) {
	out := make([]models.Measurement, 0)
	err := s.Chunks(ctx, func(chunk []models.Measurement) error {
		out = append(out, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Normalize casts a raw row, applies the joint noise-floor gate and reshapes it
// into one measurement per channel, car 1 first. keep is false when the gate drops the row.
// An empty value cell is treated as missing and fails the gate; any other cast
// failure is returned as a *CastError.
func Normalize(raw models.RawRow, line int) (pair [2]models.Measurement, keep bool, err error) {
	ts, err := utils.ParseOperDatetime(raw.OperDatetime)
	if err != nil {
		return pair, false, &CastError{Line: line, Column: ColOperDatetime, Value: raw.OperDatetime, Err: err}
	}
	car1, ok1, err := castValue(raw.Car1Value)
	if err != nil {
		return pair, false, &CastError{Line: line, Column: ColCar1Value, Value: raw.Car1Value, Err: err}
	}
	car8, ok8, err := castValue(raw.Car8Value)
	if err != nil {
		return pair, false, &CastError{Line: line, Column: ColCar8Value, Value: raw.Car8Value, Err: err}
	}

	if !ok1 || !ok8 || !(car1 > NoiseFloor && car8 > NoiseFloor) {
		return pair, false, nil
	}

	pair[0] = models.Measurement{OperDatetime: ts, FleetID: raw.FleetID, CarNo: models.Car1, Value: car1}
	pair[1] = models.Measurement{OperDatetime: ts, FleetID: raw.FleetID, CarNo: models.Car8, Value: car8}
	return pair, true, nil
}

func castValue(text string) (float64, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

type columnIndex struct {
	operDatetime int
	fleetID      int
	car1         int
	car8         int
	width        int
}

func resolveColumns(header []string) (columnIndex, error) {
	idx := map[string]int{}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, seen := idx[name]; !seen {
			idx[name] = i
		}
	}

	cols := columnIndex{}
	targets := []struct {
		name string
		dst  *int
	}{
		{ColOperDatetime, &cols.operDatetime},
		{ColFleetID, &cols.fleetID},
		{ColCar1Value, &cols.car1},
		{ColCar8Value, &cols.car8},
	}
	for _, t := range targets {
		i, ok := idx[t.name]
		if !ok {
			return columnIndex{}, fmt.Errorf("%w: %s", ErrMissingColumn, t.name)
		}
		*t.dst = i
		if i+1 > cols.width {
			cols.width = i + 1
		}
	}
	return cols, nil
}

func (c columnIndex) raw(record []string, line int) (models.RawRow, error) {
	if len(record) < c.width {
		return models.RawRow{}, fmt.Errorf("line %d: expected at least %d cells, got %d: %w", line, c.width, len(record), ErrShortRow)
	}
	return models.RawRow{
		OperDatetime: record[c.operDatetime],
		FleetID:      record[c.fleetID],
		Car1Value:    record[c.car1],
		Car8Value:    record[c.car8],
	}, nil
}

func allEmpty(ss []string) bool {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}
