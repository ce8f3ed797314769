// Package record defines the fixed-layout record types persisted by the
// fleet database. Every type serializes to a constant-size slot with a fixed
// field order, little-endian integers and null-padded fixed-width text, so a
// slot's file offset is pure arithmetic over its table offset and index.
package record

// Slot sizes. These are load-bearing: they define the on-disk format and
// must never change for a given format version.
const (
	HeaderSize      = 4096
	DriverSize      = 1024
	VehicleSize     = 1024
	TripSize        = 1024
	MaintenanceSize = 1024
	ExpenseSize     = 1024
	DocumentSize    = 1024
	IncidentSize    = 2048
)

// Magic identifies a fleet database file.
var Magic = [8]byte{'F', 'L', 'T', 'D', 'B', '0', '0', '1'}

// Version is the current file format version (v1.0).
const Version = 0x00010000

// Table identifies one of the fixed slot tables.
type Table uint8

const (
	TableDriver Table = iota
	TableVehicle
	TableTrip
	TableMaintenance
	TableExpense
	TableDocument
	TableIncident
)

func (t Table) String() string {
	switch t {
	case TableDriver:
		return "driver"
	case TableVehicle:
		return "vehicle"
	case TableTrip:
		return "trip"
	case TableMaintenance:
		return "maintenance"
	case TableExpense:
		return "expense"
	case TableDocument:
		return "document"
	case TableIncident:
		return "incident"
	default:
		return "unknown"
	}
}

// UserRole is a driver's role code.
type UserRole uint8

const (
	RoleDriver UserRole = iota
	RoleAdmin
	RoleFleetManager
)

// VehicleType is a vehicle body class code.
type VehicleType uint8

const (
	VehicleSedan VehicleType = iota
	VehicleSUV
	VehicleTruck
	VehicleVan
	VehicleMotorcycle
)

// MaintenanceType is a service class code.
type MaintenanceType uint8

const (
	MaintenanceOilChange MaintenanceType = iota
	MaintenanceTireRotation
	MaintenanceBrakeService
	MaintenanceEngineCheck
	MaintenanceTransmission
	MaintenanceGeneralService
)

// ExpenseCategory is an expense class code.
type ExpenseCategory uint8

const (
	ExpenseFuel ExpenseCategory = iota
	ExpenseMaintenance
	ExpenseInsurance
	ExpenseToll
	ExpenseParking
	ExpenseOther
)

func (c ExpenseCategory) String() string {
	switch c {
	case ExpenseFuel:
		return "fuel"
	case ExpenseMaintenance:
		return "maintenance"
	case ExpenseInsurance:
		return "insurance"
	case ExpenseToll:
		return "toll"
	case ExpenseParking:
		return "parking"
	default:
		return "other"
	}
}

// IncidentType is an incident class code.
type IncidentType uint8

const (
	IncidentAccident IncidentType = iota
	IncidentBreakdown
	IncidentTheft
	IncidentVandalism
	IncidentTrafficViolation
)

func (t IncidentType) String() string {
	switch t {
	case IncidentAccident:
		return "accident"
	case IncidentBreakdown:
		return "breakdown"
	case IncidentTheft:
		return "theft"
	case IncidentVandalism:
		return "vandalism"
	case IncidentTrafficViolation:
		return "traffic_violation"
	default:
		return "unknown"
	}
}

// DrivingEventType classifies a detected risky-driving event.
type DrivingEventType uint8

const (
	EventHarshBraking DrivingEventType = iota
	EventRapidAcceleration
	EventSpeeding
	EventSharpTurn
	EventIdleExcessive
)

func (t DrivingEventType) String() string {
	switch t {
	case EventHarshBraking:
		return "harsh_braking"
	case EventRapidAcceleration:
		return "rapid_acceleration"
	case EventSpeeding:
		return "speeding"
	case EventSharpTurn:
		return "sharp_turn"
	case EventIdleExcessive:
		return "idle_excessive"
	default:
		return "unknown"
	}
}

// Header is the 4096-byte record at file offset 0. It is the sole source of
// truth for table locations and is rewritten on close with an updated
// modification time. All timestamps are Unix seconds.
type Header struct {
	Magic       [8]byte
	Version     uint32
	TotalSize   uint64
	CreatedTime uint64
	Modified    uint64
	CreatorInfo [64]byte

	DriverTableOffset      uint64
	VehicleTableOffset     uint64
	TripTableOffset        uint64
	MaintenanceTableOffset uint64
	ExpenseTableOffset     uint64
	DocumentTableOffset    uint64
	IncidentTableOffset    uint64

	PrimaryIndexOffset   uint64
	SecondaryIndexOffset uint64

	MaxDrivers  uint32
	MaxVehicles uint32
	MaxTrips    uint32

	Reserved [3912]byte
}

// Driver is one 1024-byte driver profile slot. A slot is empty when
// Active == 0; soft delete flips Active back to 0 without reclaiming bytes.
type Driver struct {
	DriverID     uint64
	Username     [64]byte
	PasswordHash [65]byte
	Role         UserRole

	FullName      [128]byte
	Email         [128]byte
	Phone         [32]byte
	LicenseNumber [32]byte
	LicenseExpiry uint64

	TotalTrips        uint64
	TotalDistance     float64
	TotalFuelConsumed float64
	SafetyScore       uint32
	HarshEventsCount  uint32

	CreatedTime uint64
	LastLogin   uint64
	Active      uint8

	TripHistoryHead uint64
	TripHistoryTail uint64

	Reserved [493]byte
}

// Vehicle is one 1024-byte vehicle slot; empty when Active == 0.
type Vehicle struct {
	VehicleID     uint64
	OwnerDriverID uint64

	LicensePlate [32]byte
	Make         [64]byte
	Model        [64]byte
	Year         uint32
	Type         VehicleType
	Color        [32]byte
	VIN          [32]byte

	EngineCapacity   uint32
	FuelTankCapacity float64
	FuelType         [16]byte

	CurrentOdometer     float64
	LastServiceOdometer float64

	InsuranceProvider [64]byte
	InsurancePolicy   [64]byte
	InsuranceExpiry   uint64

	RegistrationExpiry uint64

	LastMaintenanceDate uint64
	NextMaintenanceDue  uint64

	CreatedTime uint64
	Active      uint8

	Reserved [566]byte
}

// Trip is one 1024-byte trip slot; empty when TripID == 0. A trip with a
// start time and EndTime == 0 is an active trip.
type Trip struct {
	TripID    uint64
	DriverID  uint64
	VehicleID uint64

	StartTime uint64
	EndTime   uint64
	Duration  uint32

	StartLatitude  float64
	StartLongitude float64
	EndLatitude    float64
	EndLongitude   float64
	StartAddress   [128]byte
	EndAddress     [128]byte

	Distance       float64
	AvgSpeed       float64
	MaxSpeed       float64
	FuelConsumed   float64
	FuelEfficiency float64

	HarshBrakingCount      uint16
	RapidAccelerationCount uint16
	SpeedingCount          uint16
	SharpTurnCount         uint16

	GPSDataOffset uint64
	GPSDataCount  uint32

	Notes [256]byte

	Reserved [376]byte
}

// GPSWaypoint is a streaming telemetry point. Waypoints are never persisted
// standalone; they attach to the in-memory active trip and fold into the
// trip's aggregate fields when the trip ends.
type GPSWaypoint struct {
	Timestamp  uint64
	Latitude   float64
	Longitude  float64
	Speed      float32
	Altitude   float32
	Accuracy   float32
	Satellites uint8
}

// Maintenance is one 1024-byte service record slot; empty when
// MaintenanceID == 0.
type Maintenance struct {
	MaintenanceID uint64
	VehicleID     uint64
	DriverID      uint64

	Type            MaintenanceType
	ServiceDate     uint64
	OdometerReading float64

	ServiceCenter [128]byte
	Technician    [64]byte
	Description   [192]byte

	LaborCost float64
	PartsCost float64
	TotalCost float64
	Currency  [8]byte

	PartsReplaced [192]byte

	NextServiceDate     uint64
	NextServiceOdometer float64

	ReceiptDocID uint64

	Notes [191]byte

	Reserved [160]byte
}

// Expense is one 1024-byte expense slot; empty when ExpenseID == 0.
// Deleting an expense zeroes its amount via update; the id survives so that
// audit queries still see the row.
type Expense struct {
	ExpenseID uint64
	DriverID  uint64
	VehicleID uint64
	TripID    uint64

	Category    ExpenseCategory
	ExpenseDate uint64

	Amount      float64
	Currency    [8]byte
	Description [256]byte

	FuelQuantity     float64
	FuelPricePerUnit float64
	FuelStation      [128]byte

	PaymentMethod [32]byte
	ReceiptNumber [64]byte

	TaxDeductible uint8
	TaxAmount     float64

	ReceiptDocID uint64

	Notes [256]byte

	Reserved [198]byte
}

// Document is one 1024-byte document metadata slot; empty when
// DocumentID == 0. The document payload itself lives outside the record
// store.
type Document struct {
	DocumentID uint64
	OwnerID    uint64
	OwnerType  uint8

	Filename   [256]byte
	MimeType   [64]byte
	FileSize   uint64
	UploadDate uint64
	ExpiryDate uint64

	DataOffset uint64
	DataBlocks uint32

	Description [256]byte
	Tags        [128]byte

	Reserved [267]byte
}

// Incident is one 2048-byte incident report slot; empty when IncidentID == 0.
type Incident struct {
	IncidentID uint64
	DriverID   uint64
	VehicleID  uint64
	TripID     uint64

	Type         IncidentType
	IncidentTime uint64

	Latitude        float64
	Longitude       float64
	LocationAddress [256]byte

	Description          [512]byte
	PoliceReportNumber   [64]byte
	InsuranceClaimNumber [64]byte

	OtherPartyInfo [256]byte
	WitnessInfo    [256]byte

	EstimatedDamage float64
	InsurancePayout float64
	Currency        [8]byte

	PhotoDocIDs [5]uint64
	ReportDocID uint64

	Resolved     uint8
	ResolvedDate uint64

	Notes [256]byte

	Reserved [246]byte
}

// DatabaseStats is the aggregate produced by a full scan of every table.
type DatabaseStats struct {
	TotalDrivers            uint64
	ActiveDrivers           uint64
	TotalVehicles           uint64
	TotalTrips              uint64
	TotalDistance           float64
	TotalExpenses           uint64
	TotalMaintenanceRecords uint64
	TotalDocuments          uint64
	TotalIncidents          uint64
	DatabaseSize            uint64
	UsedSpace               uint64
}

// NewHeader returns a header with the magic, version and default capacities
// filled in. Offsets and sizes are computed by the store when the file is
// created.
func NewHeader() Header {
	return Header{
		Magic:       Magic,
		Version:     Version,
		MaxDrivers:  10000,
		MaxVehicles: 50000,
		MaxTrips:    10000000,
	}
}

// NewDriver returns a live driver profile with the initial safety score.
func NewDriver(id uint64) Driver {
	return Driver{
		DriverID:    id,
		SafetyScore: 1000,
		Active:      1,
	}
}

// NewVehicle returns a live vehicle record.
func NewVehicle(id, ownerID uint64) Vehicle {
	return Vehicle{
		VehicleID:     id,
		OwnerDriverID: ownerID,
		Active:        1,
	}
}
