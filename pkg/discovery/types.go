package discovery

import (
	"errors"
	"time"

	"github.com/sinara-hw/stabilizer-go/pkg/identity"
	"github.com/sinara-hw/stabilizer-go/pkg/version"
)

// Service type constants for mDNS.
const (
	// ServiceTypeDevice is the service type of devices.
	ServiceTypeDevice = "_stabilizer._tcp"

	// ServiceTypeBroker is the service type of brokers.
	ServiceTypeBroker = "_stabilizer-broker._tcp"

	// Domain is the mDNS domain.
	Domain = "local"
)

// TXT record keys.
const (
	TXTKeyApp     = "app"    // Application name
	TXTKeyMAC     = "mac"    // Device MAC, dash separated
	TXTKeyPrefix  = "prefix" // Topic prefix
	TXTKeyBroker  = "broker" // Broker address used by the device (optional)
	TXTKeyVersion = "ver"    // Protocol version (optional)
)

// Timing and limits.
const (
	// BrowseTimeout is the default timeout for lookups.
	BrowseTimeout = 5 * time.Second

	// DefaultTTL is the default DNS record TTL.
	DefaultTTL = 120 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrInvalidPort         = errors.New("port must be non-zero")
	ErrNotFound            = errors.New("service not found")
)

// DeviceInfo is what a device advertises.
type DeviceInfo struct {
	App    string
	MAC    identity.MAC
	Prefix string

	// Broker is the broker address the device uses.
	Broker string

	// Version is the protocol version.
	Version string

	// Port is the advertised port, usually the broker port.
	Port uint16
}

// InstanceName returns "<app>-<mac>".
func (d *DeviceInfo) InstanceName() string {
	return d.App + "-" + d.MAC.String()
}

// Compatible reports whether the advertised protocol version matches ours.
func (d *DeviceInfo) Compatible() bool {
	return version.CompatibleString(d.Version)
}

// BrokerInfo is what a broker advertises.
type BrokerInfo struct {
	// Name is the instance name.
	Name string

	// Port is the TCP listen port.
	Port uint16

	// Version is the protocol version.
	Version string
}

// Endpoint is the address part of a discovered service.
type Endpoint struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
}

func (e *Endpoint) endpoint() *Endpoint {
	return e
}

// DeviceService is a discovered device.
type DeviceService struct {
	Endpoint
	Info DeviceInfo
}

// BrokerService is a discovered broker.
type BrokerService struct {
	Endpoint
	Version string
}

// ServiceEntry is the library-independent form of an mDNS answer.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

func (e *ServiceEntry) toEndpoint() Endpoint {
	return Endpoint{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    append([]string(nil), e.Addrs...),
	}
}

// ToDeviceService converts an entry to a DeviceService.
func (e *ServiceEntry) ToDeviceService() (*DeviceService, error) {
	info, err := DecodeDeviceTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	info.Port = e.Port
	return &DeviceService{Endpoint: e.toEndpoint(), Info: *info}, nil
}

// ToBrokerService converts an entry to a BrokerService.
func (e *ServiceEntry) ToBrokerService() (*BrokerService, error) {
	txt := StringsToTXTRecords(e.Text)
	return &BrokerService{Endpoint: e.toEndpoint(), Version: txt[TXTKeyVersion]}, nil
}
