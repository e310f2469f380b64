package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/scheduler/internal/domain/pesel"
)

// Patient is a registered patient. LastCancellationTime drives the booking
// cooldown and is only written when the patient cancels.
type Patient struct {
	ID                   uuid.UUID    `db:"id" json:"id"`
	PESEL                string       `db:"pesel" json:"pesel"`
	FirstName            string       `db:"first_name" json:"first_name"`
	LastName             string       `db:"last_name" json:"last_name"`
	BirthDate            time.Time    `db:"birth_date" json:"birth_date"`
	Gender               pesel.Gender `db:"gender" json:"gender"`
	Email                *string      `db:"email" json:"email,omitempty"`
	Phone                *string      `db:"phone" json:"phone,omitempty"`
	LastCancellationTime *time.Time   `db:"last_cancellation_time" json:"last_cancellation_time,omitempty"`
	CreatedAt            time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time    `db:"updated_at" json:"updated_at"`
}

func (p *Patient) clone() *Patient {
	c := *p
	if p.Email != nil {
		v := *p.Email
		c.Email = &v
	}
	if p.Phone != nil {
		v := *p.Phone
		c.Phone = &v
	}
	if p.LastCancellationTime != nil {
		v := *p.LastCancellationTime
		c.LastCancellationTime = &v
	}
	return &c
}
