package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppointment_Window(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	assert.NoError(t, err)

	a := &Appointment{Date: "2026-03-15", Time: "14:30", Duration: 45}
	start, end := a.Window(loc)

	assert.Equal(t, time.Date(2026, 3, 15, 14, 30, 0, 0, loc), start)
	assert.Equal(t, 45*time.Minute, end.Sub(start))
}

func TestAppointment_Window_DefaultDuration(t *testing.T) {
	a := &Appointment{Date: "2026-03-15", Time: "09:00"}
	start, end := a.Window(time.UTC)

	assert.Equal(t, time.Duration(DefaultAppointmentDuration)*time.Minute, end.Sub(start))
}

func TestAppointment_Window_Unparseable(t *testing.T) {
	for _, a := range []*Appointment{
		{Date: "someday", Time: "noon"},
		{Date: "2026-03-15", Time: "25:99"},
		{},
	} {
		start, end := a.Window(time.UTC)
		assert.True(t, start.IsZero())
		assert.True(t, end.IsZero())
	}
}

func TestAppointment_Qualifying(t *testing.T) {
	var nilAppt *Appointment
	assert.False(t, nilAppt.Qualifying())

	assert.True(t, (&Appointment{IsPaid: true, Status: AppointmentConfirmed}).Qualifying())
	assert.True(t, (&Appointment{IsPaid: true, Status: AppointmentCompleted}).Qualifying())

	assert.False(t, (&Appointment{IsPaid: false, Status: AppointmentConfirmed}).Qualifying())
	assert.False(t, (&Appointment{IsPaid: true, Status: AppointmentCancelled}).Qualifying())
	assert.False(t, (&Appointment{IsPaid: true, Status: AppointmentPending}).Qualifying())
}
