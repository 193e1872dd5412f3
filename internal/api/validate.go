package api

import (
	"net"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxNameLen is the maximum length for name fields (trunk names, rule names).
const maxNameLen = 200

// maxShortStringLen is the maximum length for short identifiers (usernames, room prefixes).
const maxShortStringLen = 40

// maxPasswordLen is the maximum length for passwords/PINs/secrets.
const maxPasswordLen = 256

// maxHostLen is the maximum length for hostnames/IP addresses.
const maxHostLen = 253

// phoneRe validates dialable numbers: optional leading +, then digits,
// with common separators tolerated after stripping.
var phoneRe = regexp.MustCompile(`^\+?\d{2,20}$`)

// pinRe validates PINs: digits only, 4-20 chars.
var pinRe = regexp.MustCompile(`^\d{4,20}$`)

// validateStringLen checks that a string does not exceed maxLen characters.
// Returns an error message if invalid, empty string if OK.
func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

// validatePhoneNumber checks that a number is dialable. Spaces, dashes and
// parentheses are stripped before matching. Empty values are allowed.
func validatePhoneNumber(field, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, value)
	if !phoneRe.MatchString(stripped) {
		return field + " is not a valid phone number"
	}
	return ""
}

// validatePIN checks a PIN is digits-only and between 4-20 chars.
// Empty PINs are allowed (optional field).
func validatePIN(field, value string) string {
	if value == "" {
		return ""
	}
	if !pinRe.MatchString(value) {
		return field + " must be 4-20 digits"
	}
	return ""
}

// validateHost checks that a string looks like a valid hostname or IP,
// optionally with a port.
func validateHost(field, value string) string {
	if value == "" {
		return ""
	}
	if len(value) > maxHostLen {
		return field + " exceeds maximum length"
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		value = host
	}
	// Accept IP addresses.
	if net.ParseIP(value) != nil {
		return ""
	}
	// Basic hostname validation: no spaces, reasonable characters.
	if strings.ContainsAny(value, " \t\n\r") {
		return field + " contains invalid characters"
	}
	return ""
}

// validateIPList checks that each entry in a list is a valid IP or CIDR.
func validateIPList(field string, ips []string) string {
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		// Allow CIDR notation.
		if strings.Contains(ip, "/") {
			if _, _, err := net.ParseCIDR(ip); err != nil {
				return field + " contains an entry that is not a valid IP or CIDR"
			}
			continue
		}
		if net.ParseIP(ip) == nil {
			return field + " contains an entry that is not a valid IP address"
		}
	}
	return ""
}

// containsControlChars checks whether a string has control characters
// (except common whitespace like \n, \r, \t).
func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}

// validateNoControlChars rejects strings with control characters.
func validateNoControlChars(field, value string) string {
	if containsControlChars(value) {
		return field + " contains invalid characters"
	}
	return ""
}
