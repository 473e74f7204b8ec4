package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/parquet-go/parquet-go"
)

// LoadOptions controls how tolerant the loader is of malformed rows.
type LoadOptions struct {
	// Lenient turns unparsable numeric cells into nil instead of failing
	// the row.
	Lenient bool
}

// LoadFile reads products from path, picking the decoder by extension:
// .parquet files are read with parquet-go, anything else as CSV with a
// header row.
func LoadFile(path string, opts LoadOptions) ([]Product, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		products, err := parquet.ReadFile[Product](path)
		if err != nil {
			return nil, fmt.Errorf("reading parquet %s: %w", path, err)
		}
		if err := finiteNumbers(products, opts); err != nil {
			return nil, fmt.Errorf("reading parquet %s: %w", path, err)
		}
		return products, nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening catalog %s: %w", path, err)
		}
		defer f.Close()
		products, err := ReadCSV(f, opts)
		if err != nil {
			return nil, fmt.Errorf("reading csv %s: %w", path, err)
		}
		return products, nil
	}
}

// ReadCSV decodes products from CSV. Columns are matched to fields by header
// name; unknown columns are ignored and missing columns keep their defaults.
// All row errors are collected and returned together.
func ReadCSV(r io.Reader, opts LoadOptions) ([]Product, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	logger := slog.Default().With("component", "catalog-loader")

	var (
		products []Product
		result   *multierror.Error
	)
	line := 1
	for {
		line++
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		cell := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}
		p := Product{
			Title:        cell("title"),
			Brand:        cell("brand"),
			Description:  cell("description"),
			Currency:     cell("currency"),
			Availability: cell("availability"),
			Discount:     cell("discount"),
			Manufacturer: cell("manufacturer"),
			Category:     cell("category"),
		}
		var rowErr error
		if p.Price, rowErr = parseFloat(cell("price")); rowErr != nil {
			rowErr = fmt.Errorf("line %d: price: %w", line, rowErr)
		} else if p.ReviewsCount, rowErr = parseInt(cell("reviews_count")); rowErr != nil {
			rowErr = fmt.Errorf("line %d: reviews_count: %w", line, rowErr)
		} else if p.Rating, rowErr = parseFloat(cell("rating")); rowErr != nil {
			rowErr = fmt.Errorf("line %d: rating: %w", line, rowErr)
		}
		if rowErr != nil {
			if !opts.Lenient {
				result = multierror.Append(result, rowErr)
				continue
			}
			logger.Warn("keeping row with unparsable numeric value", "error", rowErr)
			p.Price = lenientFloat(cell("price"))
			p.ReviewsCount = lenientInt(cell("reviews_count"))
			p.Rating = lenientFloat(cell("rating"))
		}
		products = append(products, p)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return products, nil
}

// finiteNumbers rejects NaN and infinite prices or ratings, which cannot be
// encoded as JSON. In lenient mode they are cleared instead.
func finiteNumbers(products []Product, opts LoadOptions) error {
	var result *multierror.Error
	for i := range products {
		p := &products[i]
		for _, f := range []struct {
			name string
			v    **float64
		}{{"price", &p.Price}, {"rating", &p.Rating}} {
			if *f.v == nil || !(math.IsNaN(**f.v) || math.IsInf(**f.v, 0)) {
				continue
			}
			if opts.Lenient {
				*f.v = nil
				continue
			}
			result = multierror.Append(result, fmt.Errorf("row %d: %s: non-finite value %v", i+1, f.name, **f.v))
		}
	}
	return result.ErrorOrNil()
}

func cleanNumber(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "")
}

func parseFloat(s string) (*float64, error) {
	s = cleanNumber(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite value %q", s)
	}
	return &f, nil
}

func parseInt(s string) (*int64, error) {
	s = cleanNumber(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func lenientFloat(s string) *float64 {
	f, err := parseFloat(s)
	if err != nil {
		return nil
	}
	return f
}

func lenientInt(s string) *int64 {
	n, err := parseInt(s)
	if err != nil {
		return nil
	}
	return n
}
