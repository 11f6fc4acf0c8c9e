package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills a zero primary key before insert; ids are minted in Go so the
// same rows work against postgres and sqlite.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (s *Seller) BeforeCreate(*gorm.DB) error            { assignID(&s.ID); return nil }
func (p *Product) BeforeCreate(*gorm.DB) error           { assignID(&p.ID); return nil }
func (s *Service) BeforeCreate(*gorm.DB) error           { assignID(&s.ID); return nil }
func (c *CartLine) BeforeCreate(*gorm.DB) error          { assignID(&c.ID); return nil }
func (w *WeeklySchedule) BeforeCreate(*gorm.DB) error    { assignID(&w.ID); return nil }
func (d *DaySlot) BeforeCreate(*gorm.DB) error           { assignID(&d.ID); return nil }
func (b *AvailabilityBlock) BeforeCreate(*gorm.DB) error { assignID(&b.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error             { assignID(&o.ID); return nil }
func (i *OrderLineItem) BeforeCreate(*gorm.DB) error     { assignID(&i.ID); return nil }
func (i *OrderServiceItem) BeforeCreate(*gorm.DB) error  { assignID(&i.ID); return nil }
func (d *DiscountCode) BeforeCreate(*gorm.DB) error      { assignID(&d.ID); return nil }
func (u *DiscountCodeUsage) BeforeCreate(*gorm.DB) error { assignID(&u.ID); return nil }
func (r *PointsRedemption) BeforeCreate(*gorm.DB) error  { assignID(&r.ID); return nil }
func (p *Payout) BeforeCreate(*gorm.DB) error            { assignID(&p.ID); return nil }
func (n *Notification) BeforeCreate(*gorm.DB) error      { assignID(&n.ID); return nil }
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error       { assignID(&e.ID); return nil }
