// Package schema defines the task data model shared by the sync engine.
//
// # Overview
//
// A Task is the central entity. Its JSON form uses camelCase keys and is the
// format written to the local cache and to JSONL exports:
//
//	{
//	  "id": "6f1c0f3e-7f0b-4b1e-9a39-5d2f8e1f6a10",
//	  "title": "Design review",
//	  "description": "Walk through the sync diagrams",
//	  "assignedTo": "user@example.com",
//	  "assignedDate": "2026-01-10T07:36:29Z",
//	  "dueDate": "2026-01-12T17:00:00Z",
//	  "completed": false,
//	  "status": "in_progress",
//	  "createdAt": "2026-01-10T07:36:29Z",
//	  "updatedAt": "2026-01-10T08:02:11Z",
//	  "createdBy": "user-1"
//	}
//
// The remote store uses a snake_case row shape; that mapping lives in the
// gateway package.
//
// # Completion
//
// Completed and Status are redundant and always agree: Completed is true
// exactly when Status is StatusCompleted. Normalize restores this on
// a full task, and Changes.Normalize does the same for a partial update.
//
// # Mutations
//
// A Mutation records an intent to replay a create, update or delete against
// the remote store. It carries the full post-mutation task snapshot, never a
// diff, so replaying one entry is idempotent.
//
// # Filters
//
// Filters are transient view state. DefaultFilters returns the state a fresh
// session starts with and the state ResetFilters restores.
package schema
