// Package schema defines the persisted JSON document of the personal manager.
//
// # Overview
//
// All user data lives in a single document, the Snapshot, which is loaded
// once at startup and rewritten wholesale on every save:
//
//	{
//	  "schemaVersion": 3,
//	  "todos": [{"id": "...", "text": "Pay rent", "status": "todo", "priority": "high", "dueDate": "2026-10-18"}],
//	  "passwords": [{"id": "...", "title": "mail", "pass": "<ciphertext>"}],
//	  "apis": [], "cards": [], "videos": [], "books": [], "notes": [],
//	  "events": [{"id": "...", "title": "Gym", "start": "07:00", "type": "schedule", "color": "#3b82f6"}],
//	  "layout": {"todos": "1x1-v", "notes": "grid"},
//	  "theme": "dark",
//	  "tab": "todos"
//	}
//
// # Sensitive Fields
//
// Password.Pass, SecurityQuestion.A, APIKey.Key, APIKey.Secret, Card.Number
// and Card.CVV always hold ciphertext produced by the vault package. This
// package never sees plaintext for them.
//
// # Derived Fields
//
// aiAnalysis, prioritizedTodos, securityHealth and dailyBriefing are caches
// recomputed by the assistant. They are pointers so that "never computed"
// (nil, omitted) stays distinguishable from "computed and empty".
//
// # Versions
//
// Documents written before schemaVersion existed decode as version 0. The
// migrate package walks them up to CurrentVersion; this package only parses
// and validates.
package schema
