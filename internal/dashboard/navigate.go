package dashboard

import (
	"fmt"

	"github.com/kjstillabower/nostradamus/internal/timeseries"
)

// PageCarousel moves the carousel by delta weeks.
func (c *Controller) PageCarousel(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.CarouselOffset += delta
}

// JumpToToday recenters the carousel on today.
func (c *Controller) JumpToToday() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.CarouselOffset = 0
}

// SelectDay selects the daily record for date (YYYY-MM-DD or a timestamp on that day).
func (c *Controller) SelectDay(date string) error {
	key, err := timeseries.DateKey(date)
	if err != nil {
		return fmt.Errorf("select %q: %w", date, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.state.Daily.Find(key); !ok {
		return fmt.Errorf("select %s: %w", key, ErrUnknownDay)
	}
	c.state.SelectedDate = key
	return nil
}
