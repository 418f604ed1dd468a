package migration

import (
	"strings"
	"time"

	"floortrack/pkg/domain"
)

// Legacy namespace keys. The old tracker kept everything under four flat
// entries plus the backup it writes before migrating.
const (
	keyAdminData        = "effTracker_adminData"
	keyActiveSessions   = "effTracker_activeSessions"
	keyCompletedEntries = "effTracker_completedEntries"
	keyDailyHistory     = "dailyHistory"
	backupKey           = "manufacturing_backup_legacy"
)

// legacyAdminData is the admin bundle: reference data entered by hand.
type legacyAdminData struct {
	Employees []legacyEmployee `json:"employees"`
	Products  []legacyProduct  `json:"products"`
	Tasks     []legacyTask     `json:"tasks"`
}

// Every legacy field is optional; absent values take documented defaults.
type legacyEmployee struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Shift   string `json:"shift"`
	Active  *bool  `json:"active"`
	Created string `json:"created"`
}

type legacyProduct struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Active  *bool  `json:"active"`
	Created string `json:"created"`
}

type legacyTask struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Quota     float64 `json:"quota"`
	ProductID string  `json:"productId"`
	Created   string  `json:"created"`
}

type legacySession struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employeeId"`
	TaskID     string `json:"taskId"`
	ProductID  string `json:"productId"`
	BatchID    string `json:"batchId"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	ClockedOut bool   `json:"clockedOut"`
	Notes      string `json:"notes"`
}

type legacyCompletion struct {
	ID            string  `json:"id"`
	SessionID     string  `json:"sessionId"`
	EmployeeID    string  `json:"employeeId"`
	TaskID        string  `json:"taskId"`
	ProductID     string  `json:"productId"`
	BatchID       string  `json:"batchId"`
	Quantity      int     `json:"quantity"`
	GoodUnits     *int    `json:"goodUnits"`
	ScrapUnits    int     `json:"scrapUnits"`
	ReworkUnits   int     `json:"reworkUnits"`
	StartTime     string  `json:"startTime"`
	EndTime       string  `json:"endTime"`
	Duration      int64   `json:"duration"`
	UPH           float64 `json:"uph"`
	Efficiency    float64 `json:"efficiency"`
	QualityReason string  `json:"qualityReason"`
}

type legacyDay struct {
	Timestamp         string   `json:"timestamp"`
	CompletionIDs     []string `json:"completionIds"`
	SessionIDs        []string `json:"sessionIds"`
	BatchIDs          []string `json:"batchIds"`
	TotalUnits        int      `json:"totalUnits"`
	TotalHours        float64  `json:"totalHours"`
	AverageEfficiency float64  `json:"averageEfficiency"`
	OEE               float64  `json:"oee"`
	FPY               *float64 `json:"fpy"`
	ShiftNotes        string   `json:"shiftNotes"`
	ShiftHandoffs     []string `json:"shiftHandoffs"`
}

// legacyData bundles the parsed namespace; nil slices/maps mean the key was
// absent or unparseable.
type legacyData struct {
	AdminData        *legacyAdminData     `json:"effTracker_adminData"`
	ActiveSessions   []legacySession      `json:"effTracker_activeSessions"`
	CompletedEntries []legacyCompletion   `json:"effTracker_completedEntries"`
	DailyHistory     map[string]legacyDay `json:"dailyHistory"`
}

func (d legacyData) empty() bool {
	return d.AdminData == nil && d.ActiveSessions == nil && d.CompletedEntries == nil && d.DailyHistory == nil
}

// MapRole normalises a free-text legacy role. Unknown values become
// Operator.
func MapRole(role string) domain.Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "lead operator", "lead":
		return domain.RoleLeadOperator
	case "supervisor", "super":
		return domain.RoleSupervisor
	case "qa", "quality":
		return domain.RoleQA
	case "manager":
		return domain.RoleManager
	default:
		return domain.RoleOperator
	}
}

// MapShift normalises a free-text legacy shift. Unknown values become Day.
func MapShift(shift string) domain.Shift {
	switch strings.ToLower(strings.TrimSpace(shift)) {
	case "night", "nights":
		return domain.ShiftNight
	case "swing", "evening":
		return domain.ShiftSwing
	default:
		return domain.ShiftDay
	}
}

// MapProductType normalises a free-text legacy product type. Unknown
// values become Cartridge.
func MapProductType(productType string) domain.ProductType {
	switch strings.ToLower(strings.TrimSpace(productType)) {
	case "aio device", "aio":
		return domain.ProductAIODevice
	case "disposable", "disposables":
		return domain.ProductDisposable
	case "pod", "pods":
		return domain.ProductPod
	default:
		return domain.ProductCartridge
	}
}

// parseTime decodes a legacy ISO timestamp, falling back to the supplied
// default for empty or malformed values.
func parseTime(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05.000Z", value); err == nil {
		return t
	}
	return fallback
}

// parseTimePtr is parseTime for optional timestamps.
func parseTimePtr(value string) *time.Time {
	if value == "" {
		return nil
	}
	t := parseTime(value, time.Time{})
	if t.IsZero() {
		return nil
	}
	return &t
}
