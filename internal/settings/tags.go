package settings

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-node/internal/identity"
)

// Size limits for a single setting.
const (
	MaxTagLen   = 48
	MaxValueLen = 255
)

// Core tag names.
const (
	TagHostname = "hostname"
	TagOTAHost  = "otahost"
	TagOTASHA1  = "otasha1"
	TagNTPHost  = "ntphost"

	TagWiFiReset = "wifireset"
	TagWiFiSSID  = "wifissid"
	TagWiFiBSSID = "wifibssid"
	TagWiFiChan  = "wifichan"
	TagWiFiPass  = "wifipass"

	TagMQTTReset = "mqttreset"
	TagMQTTHost  = "mqtthost"
	TagMQTTHost2 = "mqtthost2"
	TagMQTTUser  = "mqttuser"
	TagMQTTPass  = "mqttpass"
	TagMQTTPort  = "mqttport"
	TagMQTTSHA1  = "mqttsha1"
	TagMQTT2SHA1 = "mqtt2sha1"

	TagPrefixCommand = "prefixcommand"
	TagPrefixSetting = "prefixsetting"
	TagPrefixState   = "prefixstate"
	TagPrefixEvent   = "prefixevent"
	TagPrefixInfo    = "prefixinfo"
	TagPrefixError   = "prefixerror"
)

// Fixed binary lengths.
const (
	SHA1Len  = 20
	BSSIDLen = 6
)

// Credentials is the number of ranked network credential slots.
const Credentials = 3

// CredentialTag returns the tag for slot n (1-based) of a credential field:
// slot 1 is the bare name, later slots carry the number ("wifissid2").
func CredentialTag(base string, n int) string {
	if n <= 1 {
		return base
	}
	return base + strconv.Itoa(n)
}

type kind int

const (
	kindText kind = iota
	kindNumber
	kindPort
	kindFixed
	kindPrefix
	kindHostname
)

type tagSpec struct {
	kind kind
	size int
}

// coreTags is the table of tags owned by the node itself.
var coreTags = func() map[string]tagSpec {
	t := map[string]tagSpec{
		TagHostname:  {kind: kindHostname},
		TagOTAHost:   {kind: kindText},
		TagOTASHA1:   {kind: kindFixed, size: SHA1Len},
		TagNTPHost:   {kind: kindText},
		TagWiFiReset: {kind: kindNumber},
		TagMQTTReset: {kind: kindNumber},
		TagMQTTHost:  {kind: kindText},
		TagMQTTHost2: {kind: kindText},
		TagMQTTUser:  {kind: kindText},
		TagMQTTPass:  {kind: kindText},
		TagMQTTPort:  {kind: kindPort},
		TagMQTTSHA1:  {kind: kindFixed, size: SHA1Len},
		TagMQTT2SHA1: {kind: kindFixed, size: SHA1Len},

		TagPrefixCommand: {kind: kindPrefix},
		TagPrefixSetting: {kind: kindPrefix},
		TagPrefixState:   {kind: kindPrefix},
		TagPrefixEvent:   {kind: kindPrefix},
		TagPrefixInfo:    {kind: kindPrefix},
		TagPrefixError:   {kind: kindPrefix},
	}
	for n := 1; n <= Credentials; n++ {
		t[CredentialTag(TagWiFiSSID, n)] = tagSpec{kind: kindText}
		t[CredentialTag(TagWiFiPass, n)] = tagSpec{kind: kindText}
		t[CredentialTag(TagWiFiChan, n)] = tagSpec{kind: kindNumber}
		t[CredentialTag(TagWiFiBSSID, n)] = tagSpec{kind: kindFixed, size: BSSIDLen}
	}
	return t
}()

// builtinDefaults apply when a tag is absent. They are never persisted.
var builtinDefaults = map[string]string{
	TagPrefixCommand: "command",
	TagPrefixSetting: "setting",
	TagPrefixState:   "state",
	TagPrefixEvent:   "event",
	TagPrefixInfo:    "info",
	TagPrefixError:   "error",
}

// IsCore reports whether tag belongs to the core table.
func IsCore(tag string) bool {
	_, ok := coreTags[strings.ToLower(tag)]
	return ok
}

// validate checks a non-empty value against the core tag's rules.
// An empty value always clears the tag and is not checked here.
func (t tagSpec) validate(value []byte) error {
	switch t.kind {
	case kindNumber:
		if _, err := strconv.ParseUint(string(value), 10, 32); err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrBadValue, value)
		}
	case kindPort:
		if n, err := strconv.ParseUint(string(value), 10, 16); err != nil || n == 0 {
			return fmt.Errorf("%w: %q is not a port number", ErrBadValue, value)
		}
	case kindFixed:
		if len(value) != t.size {
			return fmt.Errorf("%w: want %d bytes, got %d", ErrBadValue, t.size, len(value))
		}
	case kindPrefix:
		if strings.ContainsAny(string(value), "/+#") {
			return fmt.Errorf("%w: prefix %q contains a topic separator or wildcard", ErrBadValue, value)
		}
	case kindHostname:
		if err := identity.ValidateHostname(string(value)); err != nil {
			return fmt.Errorf("%w: %w", ErrBadValue, err)
		}
	}
	return nil
}
