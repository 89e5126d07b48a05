package api

import (
	"container/list"
	"sync"
)

// SampleStore keeps the most recent sample responses so clients can fetch
// them again by ID. The oldest entry is evicted once capacity is reached.
type SampleStore struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	samples  map[string]*list.Element
}

func NewSampleStore(capacity int) *SampleStore {
	if capacity <= 0 {
		capacity = 64
	}
	return &SampleStore{
		capacity: capacity,
		order:    list.New(),
		samples:  make(map[string]*list.Element),
	}
}

func (s *SampleStore) Save(resp SampleResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.samples[resp.ID]; ok {
		el.Value = resp
		s.order.MoveToFront(el)
		return
	}
	s.samples[resp.ID] = s.order.PushFront(resp)
	for s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.samples, oldest.Value.(SampleResponse).ID)
	}
}

func (s *SampleStore) Get(id string) (SampleResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.samples[id]
	if !ok {
		return SampleResponse{}, false
	}
	return el.Value.(SampleResponse), true
}

func (s *SampleStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.samples[id]
	if !ok {
		return false
	}
	s.order.Remove(el)
	delete(s.samples, id)
	return true
}

func (s *SampleStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
