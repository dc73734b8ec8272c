package validate

import (
	"testing"
	"time"
)

func TestPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"9876543210", "9876543210", true},
		{"+91 98765 43210", "9876543210", true},
		{"091-9876543210", "9876543210", true},
		{"5876543210", "5876543210", false},
		{"98765", "98765", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := Phone(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Phone(%q) = %q/%v, want %q/%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEmail(t *testing.T) {
	if e, ok := Email("  Ravi@Example.COM "); !ok || e != "ravi@example.com" {
		t.Errorf("Email = %q/%v", e, ok)
	}
	for _, bad := range []string{"no-at.example.com", "a@b", "a b@c.d", ""} {
		if _, ok := Email(bad); ok {
			t.Errorf("Email(%q) accepted", bad)
		}
	}
}

func TestGST(t *testing.T) {
	if g, ok := GST("29abcde1234f1z5"); !ok || g != "29ABCDE1234F1Z5" {
		t.Errorf("GST = %q/%v", g, ok)
	}
	if _, ok := GST("29ABCDE1234F105"); ok {
		t.Error("GST without Z accepted")
	}
}

func TestUPIAndIFSC(t *testing.T) {
	if v, ok := UPI("Ravi.Kumar@OKICICI"); !ok || v != "ravi.kumar@okicici" {
		t.Errorf("UPI = %q/%v", v, ok)
	}
	if _, ok := UPI("ravi@"); ok {
		t.Error("UPI with empty handle accepted")
	}
	if c, ok := IFSC("hdfc0001234"); !ok || c != "HDFC0001234" {
		t.Errorf("IFSC = %q/%v", c, ok)
	}
	if _, ok := IFSC("HDFC1001234"); ok {
		t.Error("IFSC without zero accepted")
	}
}

func TestVehicleNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"KA-01-AB-1234", "KA-01-AB-1234", true},
		{"ka 01 ab 1234", "KA-01-AB-1234", true},
		{"KA.01.A.1234", "KA-01-A-1234", true},
		{"KA--01--AB--1234", "KA-01-AB-1234", true},
		{"KA-01-ABC-1234", "KA-01-ABC-1234", false},
		{"K1-01-AB-1234", "K1-01-AB-1234", false},
	}
	for _, tc := range cases {
		got, ok := VehicleNumber(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("VehicleNumber(%q) = %q/%v, want %q/%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPayloadCapacity(t *testing.T) {
	if msg, ok := PayloadCapacity(VehicleBike, 25); ok {
		t.Errorf("25 kg on a BIKE accepted: %s", msg)
	}
	if _, ok := PayloadCapacity(VehicleBike, 18); !ok {
		t.Error("18 kg on a BIKE rejected")
	}
	if _, ok := PayloadCapacity(VehicleSmallTruck, 2000); !ok {
		t.Error("2000 kg on a SMALL_TRUCK rejected")
	}
	if _, ok := PayloadCapacity(VehicleAuto, 0); ok {
		t.Error("zero capacity accepted")
	}
	if _, ok := PayloadCapacity(VehicleType("TRACTOR"), 10); ok {
		t.Error("unknown vehicle type accepted")
	}
}

func TestDrivingLicense(t *testing.T) {
	for _, good := range []string{"KA01 2015 0012345", "ka0120150012345", "KA-01-2015-0012345", "KA0123456789012"} {
		if n, ok := DrivingLicense(good); !ok {
			t.Errorf("DrivingLicense(%q) rejected (normalized %q)", good, n)
		}
	}
	for _, bad := range []string{"12345", "KAXX20150012345", ""} {
		if _, ok := DrivingLicense(bad); ok {
			t.Errorf("DrivingLicense(%q) accepted", bad)
		}
	}
}

func TestDLExpiry(t *testing.T) {
	now := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	if _, ok := DLExpiry("2026-08-26", now); !ok {
		t.Error("tomorrow rejected")
	}
	if _, ok := DLExpiry("2026-08-25", now); ok {
		t.Error("today accepted (must be strictly future)")
	}
	if _, ok := DLExpiry("2025-01-01", now); ok {
		t.Error("past date accepted")
	}
	if _, ok := DLExpiry("2026-02-30", now); ok {
		t.Error("non-calendar date accepted")
	}
	if _, ok := DLExpiry("26/08/2026", now); ok {
		t.Error("wrong format accepted")
	}
}

func TestMaskDL(t *testing.T) {
	if got := MaskDL("KA0120150012345"); got != "KA****2345" {
		t.Errorf("MaskDL = %q, want KA****2345", got)
	}
	if got := MaskDL("short"); got != "short" {
		t.Errorf("MaskDL on short input = %q", got)
	}
}
