package service

type studentStore interface {
	reviewStudents
	studentLister
}

// Repositories groups the persistence backends the workflow services run on.
// Both the postgres repositories and the in-memory tables satisfy it.
type Repositories struct {
	Students      studentStore
	Challenges    challengeStore
	Progress      progressStore
	Evidence      evidenceStore
	Conversations conversationStore
}
