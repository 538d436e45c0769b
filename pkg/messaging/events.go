package messaging

import "time"

// Subjects published on the hospital event bus.
const (
	SubjectAppointmentCreated     = "appointments.created"
	SubjectAppointmentRescheduled = "appointments.rescheduled"
	SubjectPasswordReset          = "auth.password_reset"
	SubjectMetricsUpdated         = "metrics.updated"
	SubjectCapacityAlert          = "capacity.alert"
)

// Queue group used by notifier instances so each email is sent once.
const NotifierQueue = "careflow-notifier"

// AppointmentCreatedEvent is emitted after a successful intake.
type AppointmentCreatedEvent struct {
	AppointmentID        string    `json:"appointment_id"`
	PatientName          string    `json:"patient_name"`
	PatientEmail         string    `json:"patient_email,omitempty"`
	Department           string    `json:"department"`
	SeverityScore        int       `json:"severity_score"`
	Emergency            int       `json:"emergency"`
	AssignedDoctorID     string    `json:"assigned_doctor_id"`
	AssignedDoctorName   string    `json:"assigned_doctor_name"`
	PredictedWaitMinutes int       `json:"predicted_wait_minutes"`
	BedType              string    `json:"bed_type"`
	CreatedAt            time.Time `json:"created_at"`
}

// AppointmentRescheduledEvent is emitted when an existing appointment is
// bumped by a later emergency case.
type AppointmentRescheduledEvent struct {
	AppointmentID      string    `json:"appointment_id"`
	PatientName        string    `json:"patient_name"`
	PatientEmail       string    `json:"patient_email,omitempty"`
	AssignedDoctorName string    `json:"assigned_doctor_name"`
	Department         string    `json:"department"`
	Reason             string    `json:"reason"`
	RescheduledAt      time.Time `json:"rescheduled_at"`
}

// PasswordResetEvent carries a freshly generated temporary password to the
// notifier. It never touches the allocation path.
type PasswordResetEvent struct {
	Email        string `json:"email"`
	TempPassword string `json:"temp_password"`
}

// MetricsUpdatedEvent mirrors the latest hospital stress snapshot for live
// dashboard consumers.
type MetricsUpdatedEvent struct {
	StressIndex              float64   `json:"stress_index"`
	Level                    string    `json:"level"`
	AvgDoctorWorkloadPercent float64   `json:"avg_doctor_workload_percent"`
	ICUOccupancyPercent      float64   `json:"icu_occupancy_percent"`
	WardOccupancyPercent     float64   `json:"ward_occupancy_percent"`
	EmergencyRatio           float64   `json:"emergency_ratio"`
	ComputedAt               time.Time `json:"computed_at"`
}

// CapacityAlertEvent is emitted when a bed class turns patients away.
type CapacityAlertEvent struct {
	BedClass   string    `json:"bed_class"`
	Occupied   int       `json:"occupied"`
	Total      int       `json:"total"`
	OccurredAt time.Time `json:"occurred_at"`
}
