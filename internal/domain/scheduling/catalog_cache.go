package scheduling

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CatalogTTL bounds how long a doctor or service lookup is served from memory.
// The catalog is edited outside this service, so entries must age out.
const CatalogTTL = 5 * time.Minute

// cachedDoctorRepo memoizes GetByID lookups. Listings always hit the store.
type cachedDoctorRepo struct {
	DoctorRepository
	cache *expirable.LRU[int64, *Doctor]
}

// NewCachedDoctorRepo wraps next with an LRU of at most size doctors.
func NewCachedDoctorRepo(next DoctorRepository, size int, ttl time.Duration) DoctorRepository {
	if size <= 0 {
		return next
	}
	return &cachedDoctorRepo{
		DoctorRepository: next,
		cache:            expirable.NewLRU[int64, *Doctor](size, nil, ttl),
	}
}

func (r *cachedDoctorRepo) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	if d, ok := r.cache.Get(id); ok {
		return d, nil
	}
	d, err := r.DoctorRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Add(id, d)
	return d, nil
}

type cachedMedicalServiceRepo struct {
	MedicalServiceRepository
	cache *expirable.LRU[int64, *MedicalService]
}

// NewCachedMedicalServiceRepo wraps next with an LRU of at most size services.
func NewCachedMedicalServiceRepo(next MedicalServiceRepository, size int, ttl time.Duration) MedicalServiceRepository {
	if size <= 0 {
		return next
	}
	return &cachedMedicalServiceRepo{
		MedicalServiceRepository: next,
		cache:                    expirable.NewLRU[int64, *MedicalService](size, nil, ttl),
	}
}

func (r *cachedMedicalServiceRepo) GetByID(ctx context.Context, id int64) (*MedicalService, error) {
	if s, ok := r.cache.Get(id); ok {
		return s, nil
	}
	s, err := r.MedicalServiceRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Add(id, s)
	return s, nil
}
