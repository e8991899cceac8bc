package service

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gprbooking/internal/models"

	"gopkg.in/yaml.v2"
)

// Catalog holds the survey services offered on the booking form.
type Catalog struct {
	mu       sync.RWMutex
	services []models.SurveyService
	byID     map[string]models.SurveyService
}

func NewCatalog(services []models.SurveyService) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(services); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCatalog reads a services file of the form `services: [...]`.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services: %w", err)
	}

	var file struct {
		Services []models.SurveyService `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse services: %w", err)
	}
	return NewCatalog(file.Services)
}

// Replace swaps the catalog contents after validating ids.
func (c *Catalog) Replace(services []models.SurveyService) error {
	byID := make(map[string]models.SurveyService, len(services))
	sorted := make([]models.SurveyService, 0, len(services))
	for _, svc := range services {
		svc.ID = strings.TrimSpace(svc.ID)
		if svc.ID == "" {
			return errors.New("service id is required")
		}
		if _, dup := byID[svc.ID]; dup {
			return fmt.Errorf("duplicate service id: %s", svc.ID)
		}
		byID[svc.ID] = svc
		sorted = append(sorted, svc)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortOrder != sorted[j].SortOrder {
			return sorted[i].SortOrder < sorted[j].SortOrder
		}
		return sorted[i].ID < sorted[j].ID
	})

	c.mu.Lock()
	c.services = sorted
	c.byID = byID
	c.mu.Unlock()
	return nil
}

// Active returns the bookable services in display order.
func (c *Catalog) Active() []models.SurveyService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.SurveyService, 0, len(c.services))
	for _, svc := range c.services {
		if svc.IsActive {
			out = append(out, svc)
		}
	}
	return out
}

// Get returns an active service by id.
func (c *Catalog) Get(id string) (models.SurveyService, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	svc, ok := c.byID[strings.TrimSpace(id)]
	if !ok || !svc.IsActive {
		return models.SurveyService{}, false
	}
	return svc, true
}
