package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/sinara-hw/stabilizer-go/pkg/identity"
)

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: DefaultTTL}
}

// Advertiser registers services over mDNS.
type Advertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by service type + instance
}

// NewAdvertiser creates an advertiser.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	return &Advertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// AdvertiseDevice advertises a device, replacing an earlier advertisement of
// the same instance.
func (a *Advertiser) AdvertiseDevice(info *DeviceInfo) error {
	return a.register(info.InstanceName(), ServiceTypeDevice, info.Port, EncodeDeviceTXT(info))
}

// UpdateDevice replaces the TXT records of an advertised device.
func (a *Advertiser) UpdateDevice(info *DeviceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, ok := a.servers[ServiceTypeDevice+"/"+info.InstanceName()]
	if !ok {
		return ErrNotFound
	}
	server.SetText(TXTRecordsToStrings(EncodeDeviceTXT(info)))
	return nil
}

// AdvertiseBroker advertises a broker.
func (a *Advertiser) AdvertiseBroker(info *BrokerInfo) error {
	return a.register(info.Name, ServiceTypeBroker, info.Port, EncodeBrokerTXT(info))
}

// StopAll withdraws every advertisement.
func (a *Advertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, server := range a.servers {
		server.Shutdown()
		delete(a.servers, key)
	}
}

func (a *Advertiser) register(instance, service string, port uint16, txt TXTRecordMap) error {
	if err := ValidateInstanceName(instance); err != nil {
		return err
	}
	if port == 0 {
		return ErrInvalidPort
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := service + "/" + instance
	if server, ok := a.servers[key]; ok {
		server.Shutdown()
		delete(a.servers, key)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		instance,
		service,
		Domain,
		int(port),
		TXTRecordsToStrings(txt),
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", service, err)
	}

	a.servers[key] = server
	return nil
}

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// Browser finds services over mDNS.
type Browser struct {
	config BrowserConfig
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	return &Browser{config: config}
}

// BrowseDevices streams discovered devices until ctx is done.
func (b *Browser) BrowseDevices(ctx context.Context) <-chan *DeviceService {
	return browse(ctx, b, ServiceTypeDevice, (*ServiceEntry).ToDeviceService)
}

// BrowseBrokers streams discovered brokers until ctx is done.
func (b *Browser) BrowseBrokers(ctx context.Context) <-chan *BrokerService {
	return browse(ctx, b, ServiceTypeBroker, (*ServiceEntry).ToBrokerService)
}

// FindDevice returns the device with the given MAC.
func (b *Browser) FindDevice(ctx context.Context, mac identity.MAC) (*DeviceService, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for svc := range b.BrowseDevices(ctx) {
		if svc.Info.MAC == mac {
			return svc, nil
		}
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, mac)
	}
	return nil, ErrNotFound
}

// FindBroker returns the first broker found.
func (b *Browser) FindBroker(ctx context.Context) (*BrokerService, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc, ok := <-b.BrowseBrokers(ctx)
	if !ok {
		return nil, ErrNotFound
	}
	return svc, nil
}

func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return opts
}

// browse runs a zeroconf browse and aggregates answers by instance name:
// the first answer is emitted, later ones only extend its addresses.
func browse[S interface{ endpoint() *Endpoint }](ctx context.Context, b *Browser, service string, convert func(*ServiceEntry) (S, error)) <-chan S {
	out := make(chan S)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)

		services := make(map[string]S)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				e := fromZeroconf(entry)
				svc, err := convert(&e)
				if err != nil {
					continue
				}
				name := svc.endpoint().InstanceName
				if existing, found := services[name]; found {
					ep := existing.endpoint()
					ep.Addresses = mergeAddresses(ep.Addresses, svc.endpoint().Addresses)
					continue
				}
				services[name] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if existing, found := services[entry.Instance]; found {
					ep := existing.endpoint()
					ep.Addresses = removeAddresses(ep.Addresses, fromZeroconf(entry).Addrs)
					if len(ep.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, service, Domain, entries, removed, b.options()...)
	}()

	return out
}

// interfaces returns the named interface, or nil for all interfaces.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

func fromZeroconf(entry *zeroconf.ServiceEntry) ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return ServiceEntry{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     uint16(entry.Port),
		Text:     entry.Text,
		Addrs:    addrs,
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses removes the given addresses from the list.
func removeAddresses(addresses, gone []string) []string {
	toRemove := make(map[string]bool, len(gone))
	for _, addr := range gone {
		toRemove[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
