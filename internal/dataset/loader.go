package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"go4.org/netipx"

	"netfinder/internal/model"
)

var requiredColumns = []string{"network", "min_ip", "max_ip", "asn", "organization", "country"}

type LoadStats struct {
	// Checksum is the xxhash of the file content; it identifies the dataset
	// version in shared caches.
	Checksum    uint64
	Rows        int
	Loaded      int
	Derived     int
	Skipped     int
	ParseErrors int
}

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{
		logger: logger,
	}
}

// Load reads the range dataset at path. A missing file or header is a
// configuration error; individual bad rows are skipped and counted.
func (l *Loader) Load(path string) ([]model.NetworkRange, LoadStats, error) {
	var stats LoadStats

	f, err := os.Open(path)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: opening dataset: %v", model.ErrConfiguration, err)
	}
	defer f.Close()

	startTime := time.Now()
	digest := xxhash.New()
	ranges, stats, err := l.read(io.TeeReader(f, digest))
	if err != nil {
		return nil, stats, fmt.Errorf("%w: reading dataset %s: %v", model.ErrConfiguration, path, err)
	}
	stats.Checksum = digest.Sum64()

	l.logger.Info("Loaded network ranges",
		zap.String("path", path),
		zap.Int("rows", stats.Rows),
		zap.Int("loaded", stats.Loaded),
		zap.Int("derived_bounds", stats.Derived),
		zap.Int("skipped", stats.Skipped),
		zap.Int("parse_errors", stats.ParseErrors),
		zap.String("checksum", fmt.Sprintf("%016x", stats.Checksum)),
		zap.Duration("duration", time.Since(startTime)))

	if len(ranges) == 0 {
		l.logger.Warn("Dataset contains no usable ranges", zap.String("path", path))
	}

	return ranges, stats, nil
}

func (l *Loader) read(r io.Reader) ([]model.NetworkRange, LoadStats, error) {
	var stats LoadStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, stats, errors.New("missing header row")
	}
	if err != nil {
		return nil, stats, fmt.Errorf("reading header: %w", err)
	}

	columns, err := mapColumns(header)
	if err != nil {
		return nil, stats, err
	}

	var ranges []model.NetworkRange
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				stats.Rows++
				stats.ParseErrors++
				l.logger.Debug("failed to parse dataset row", zap.Error(err))
				continue
			}
			return nil, stats, err
		}
		stats.Rows++

		line, _ := reader.FieldPos(0)
		ipRange, derived, err := parseRow(record, columns)
		if err != nil {
			stats.ParseErrors++
			l.logger.Debug("failed to parse dataset row",
				zap.Int("line", line),
				zap.Strings("record", record),
				zap.Error(err))
			continue
		}
		if ipRange.MinIP > ipRange.MaxIP {
			stats.Skipped++
			l.logger.Debug("skipping range with min_ip > max_ip",
				zap.Int("line", line),
				zap.String("network", ipRange.Network))
			continue
		}
		if derived {
			stats.Derived++
		}

		ipRange.Seq = int64(len(ranges))
		ranges = append(ranges, ipRange)
	}

	stats.Loaded = len(ranges)
	return ranges, stats, nil
}

func mapColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, ok := columns[name]; !ok {
			columns[name] = i
		}
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	return columns, nil
}

func parseRow(record []string, columns map[string]int) (model.NetworkRange, bool, error) {
	field := func(name string) string {
		i := columns[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	ipRange := model.NetworkRange{
		Network:      field("network"),
		ASN:          field("asn"),
		Organization: field("organization"),
		Country:      field("country"),
	}
	if ipRange.Country == "" {
		ipRange.Country = model.UnknownCountry
	}

	minField, maxField := field("min_ip"), field("max_ip")
	if minField == "" && maxField == "" {
		minIP, maxIP, err := boundsFromNetwork(ipRange.Network)
		if err != nil {
			return ipRange, false, err
		}
		ipRange.MinIP, ipRange.MaxIP = minIP, maxIP
		return ipRange, true, nil
	}

	var err error
	ipRange.MinIP, err = strconv.ParseUint(minField, 10, 64)
	if err != nil {
		return ipRange, false, fmt.Errorf("min_ip: %w", err)
	}
	ipRange.MaxIP, err = strconv.ParseUint(maxField, 10, 64)
	if err != nil {
		return ipRange, false, fmt.Errorf("max_ip: %w", err)
	}

	return ipRange, false, nil
}

// boundsFromNetwork derives integer bounds from a CIDR prefix or an
// "a.b.c.d-w.x.y.z" range.
func boundsFromNetwork(network string) (uint64, uint64, error) {
	var ipRange netipx.IPRange
	if strings.Contains(network, "-") {
		r, err := netipx.ParseIPRange(network)
		if err != nil {
			return 0, 0, err
		}
		ipRange = r
	} else {
		prefix, err := netip.ParsePrefix(network)
		if err != nil {
			return 0, 0, fmt.Errorf("network %q has no bounds: %w", network, err)
		}
		ipRange = netipx.RangeOfPrefix(prefix.Masked())
	}

	if !ipRange.From().Is4() || !ipRange.To().Is4() {
		return 0, 0, fmt.Errorf("network %q is not IPv4", network)
	}

	return uint64(addrValue(ipRange.From())), uint64(addrValue(ipRange.To())), nil
}

func addrValue(addr netip.Addr) uint32 {
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
