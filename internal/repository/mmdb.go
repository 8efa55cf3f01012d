package repository

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/oschwald/maxminddb-golang"
	"go.uber.org/zap"
	"go4.org/netipx"

	"netfinder/internal/model"
)

type asnRecord struct {
	AutonomousSystemNumber       uint   `maxminddb:"autonomous_system_number"`
	AutonomousSystemOrganization string `maxminddb:"autonomous_system_organization"`
}

// MMDBRepository answers lookups from a MaxMind-format ASN database
// (GeoLite2-ASN or compatible). The database has no country data.
type MMDBRepository struct {
	reader *maxminddb.Reader
	logger *zap.Logger
}

func OpenMMDB(path string, logger *zap.Logger) (*MMDBRepository, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening mmdb: %v", model.ErrConfiguration, err)
	}

	dbType := reader.Metadata.DatabaseType
	if !strings.Contains(dbType, "ASN") && !strings.Contains(dbType, "ISP") {
		reader.Close()
		return nil, fmt.Errorf("%w: incorrect database type, expected an ASN database, got %s",
			model.ErrConfiguration, dbType)
	}

	logger.Info("Opened mmdb database",
		zap.String("path", path),
		zap.String("type", dbType),
		zap.Uint("build_epoch", reader.Metadata.BuildEpoch))

	return &MMDBRepository{
		reader: reader,
		logger: logger,
	}, nil
}

func (r *MMDBRepository) FindRange(_ context.Context, ip uint32) (*model.NetworkRange, error) {
	addr := net.IPv4(byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip)).To4()

	var record asnRecord
	network, ok, err := r.reader.LookupNetwork(addr, &record)
	if err != nil {
		return nil, err
	}
	if !ok || record.AutonomousSystemNumber == 0 {
		return nil, nil
	}

	prefix, ok := netipx.FromStdIPNet(network)
	if !ok {
		return nil, fmt.Errorf("unexpected network %v", network)
	}
	if prefix.Addr().Is4In6() && prefix.Bits() >= 96 {
		prefix = netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits()-96)
	}
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("unexpected network %v for IPv4 lookup", network)
	}
	ipRange := netipx.RangeOfPrefix(prefix.Masked())
	from, to := ipRange.From().As4(), ipRange.To().As4()

	return &model.NetworkRange{
		Network:      prefix.Masked().String(),
		MinIP:        uint64(from[0])<<24 | uint64(from[1])<<16 | uint64(from[2])<<8 | uint64(from[3]),
		MaxIP:        uint64(to[0])<<24 | uint64(to[1])<<16 | uint64(to[2])<<8 | uint64(to[3]),
		ASN:          fmt.Sprintf("AS%d", record.AutonomousSystemNumber),
		Organization: record.AutonomousSystemOrganization,
		Country:      model.UnknownCountry,
	}, nil
}

func (r *MMDBRepository) Version() string {
	return fmt.Sprintf("mmdb-%d", r.reader.Metadata.BuildEpoch)
}

func (r *MMDBRepository) ConcurrentSafe() bool {
	return true
}

func (r *MMDBRepository) Close() error {
	return r.reader.Close()
}
