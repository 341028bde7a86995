package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires the digest once a day at a fixed local time
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	loc        *time.Location
	hour       int
	minute     int
	digestFunc func(ctx context.Context) error
}

// New создает планировщик для ежедневного дайджеста в hour:minute зоны loc
func New(loc *time.Location, hour, minute int) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		ctx:    ctx,
		cancel: cancel,
		loc:    loc,
		hour:   hour,
		minute: minute,
	}
}

// SetDigestFunction устанавливает функцию, которая рассылает дайджесты
func (s *Scheduler) SetDigestFunction(f func(ctx context.Context) error) {
	s.digestFunc = f
}

// Spec returns the cron expression of the daily fire.
func (s *Scheduler) Spec() string {
	return fmt.Sprintf("%d %d * * *", s.minute, s.hour)
}

// Start запускает планировщик
func (s *Scheduler) Start() error {
	if s.digestFunc == nil {
		log.Println("⚠️ Digest function not set, scheduler will not send digests")
		return nil
	}

	_, err := s.cron.AddFunc(s.Spec(), s.fire)
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("📅 Scheduler started - daily digest at %02d:%02d %s", s.hour, s.minute, s.loc)
	return nil
}

func (s *Scheduler) fire() {
	log.Printf("🕘 Triggered daily digest at %02d:%02d %s", s.hour, s.minute, s.loc)
	if err := s.digestFunc(s.ctx); err != nil {
		log.Printf("❌ Daily digest finished with errors: %v", err)
	}
}

// Next returns the next fire time after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(s.Spec())
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t.In(s.loc)), nil
}

// Stop останавливает планировщик и дожидается текущего запуска
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("📅 Scheduler stopped")
}

// IsRunning проверяет, запущен ли планировщик
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
