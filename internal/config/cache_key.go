package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SectionPayloadKey returns the cache key for a section's candidate-facing content
func (r *CacheKeyStruct) SectionPayloadKey(sectionID string) string {
	return fmt.Sprintf("section:%s:payload", sectionID)
}

// SectionAnswerKey returns the cache key for a section's answer key hash
func (r *CacheKeyStruct) SectionAnswerKey(sectionID string) string {
	return fmt.Sprintf("section:%s:key", sectionID)
}

// CandidateNamespace returns the store prefix owned by a single candidate.
// Every persisted key of that candidate lives under it.
func (r *CacheKeyStruct) CandidateNamespace(candidateID int) string {
	return fmt.Sprintf("candidate:%d:", candidateID)
}

var CacheKey = NewCacheKeyStruct()
