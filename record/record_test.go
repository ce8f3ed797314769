package record

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlotSizes(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want int
	}{
		{"header", Header{}, HeaderSize},
		{"driver", Driver{}, DriverSize},
		{"vehicle", Vehicle{}, VehicleSize},
		{"trip", Trip{}, TripSize},
		{"maintenance", Maintenance{}, MaintenanceSize},
		{"expense", Expense{}, ExpenseSize},
		{"document", Document{}, DocumentSize},
		{"incident", Incident{}, IncidentSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, binary.Size(tt.v))
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := NewDriver(42)
	d.TotalTrips = 7
	d.TotalDistance = 1234.5
	d.SafetyScore = 870
	SetText(d.Username[:], "jdoe")
	SetText(d.FullName[:], "Jane Doe")

	data, err := Encode(&d)
	require.NoError(t, err)
	require.Len(t, data, DriverSize)

	var got Driver
	require.NoError(t, Decode(data, &got))
	require.Equal(t, d, got)
	require.Equal(t, "jdoe", Text(got.Username[:]))
}

func TestEncodeLittleEndian(t *testing.T) {
	d := NewDriver(0x0102030405060708)

	data, err := Encode(&d)
	require.NoError(t, err)
	require.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, data[:8])
}

func TestSetTextTruncation(t *testing.T) {
	var buf [8]byte
	SetText(buf[:], "abcdefghij")

	// Width-1 characters survive; the last byte stays NUL.
	require.Equal(t, "abcdefg", Text(buf[:]))
	require.Equal(t, byte(0), buf[7])
}

func TestSetTextZeroFills(t *testing.T) {
	var buf [16]byte
	SetText(buf[:], "long username here")
	SetText(buf[:], "ab")

	require.Equal(t, "ab", Text(buf[:]))
	for i := 2; i < len(buf); i++ {
		require.Equal(t, byte(0), buf[i], "byte %d not zeroed", i)
	}
}

func TestNewDriverDefaults(t *testing.T) {
	d := NewDriver(9)
	require.Equal(t, uint64(9), d.DriverID)
	require.Equal(t, uint32(1000), d.SafetyScore)
	require.Equal(t, uint8(1), d.Active)
}

func TestHeaderDefaults(t *testing.T) {
	h := NewHeader()
	require.Equal(t, Magic, h.Magic)
	require.Equal(t, uint32(Version), h.Version)
	require.Equal(t, uint32(10000), h.MaxDrivers)
	require.Equal(t, uint32(50000), h.MaxVehicles)
	require.Equal(t, uint32(10000000), h.MaxTrips)
}

func TestEnumStrings(t *testing.T) {
	require.Equal(t, "fuel", ExpenseFuel.String())
	require.Equal(t, "accident", IncidentAccident.String())
	require.Equal(t, "speeding", EventSpeeding.String())
}
