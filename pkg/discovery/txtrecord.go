package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sinara-hw/stabilizer-go/pkg/identity"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeDeviceTXT creates the TXT records of a device.
func EncodeDeviceTXT(info *DeviceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyApp:    info.App,
		TXTKeyMAC:    info.MAC.String(),
		TXTKeyPrefix: info.Prefix,
	}
	if info.Broker != "" {
		txt[TXTKeyBroker] = info.Broker
	}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	return txt
}

// DecodeDeviceTXT parses the TXT records of a device.
func DecodeDeviceTXT(txt TXTRecordMap) (*DeviceInfo, error) {
	info := &DeviceInfo{}

	var ok bool
	if info.App, ok = txt[TXTKeyApp]; !ok || info.App == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyApp)
	}

	macStr, ok := txt[TXTKeyMAC]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyMAC)
	}
	mac, err := identity.ParseMAC(macStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
	}
	info.MAC = mac

	if info.Prefix, ok = txt[TXTKeyPrefix]; !ok || info.Prefix == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyPrefix)
	}

	info.Broker = txt[TXTKeyBroker]
	info.Version = txt[TXTKeyVersion]
	return info, nil
}

// EncodeBrokerTXT creates the TXT records of a broker.
func EncodeBrokerTXT(info *BrokerInfo) TXTRecordMap {
	txt := TXTRecordMap{}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	return txt
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
