// Package folio provides the numbering, quota and audit core of an
// invoicing and quoting application.
//
// Folio is designed as a library, not a service. Import it into the
// application that serves your HTTP routes; it provides:
//
//   - Year-scoped sequential document numbers (FACT-2025-0001) that never
//     repeat, even under concurrent requests from many processes
//   - Monthly usage quotas per subscription plan with atomic
//     check-and-reserve
//   - An immutable document lifecycle: drafts are editable, everything
//     after finalization is not
//   - A best-effort, append-only audit trail of every change and every
//     refused change
//
// # Quick Start
//
// Create a Folio instance with your preferred store:
//
//	import (
//	    "github.com/xraph/folio"
//	    "github.com/xraph/folio/store/postgres"
//	)
//
//	db, err := grove.Open(pgdriver.New(), grove.WithDSN(dsn))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	f := folio.New(postgres.New(db))
//	if err := f.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Stop()
//
// # Documents
//
// Creating a document reserves one unit of the user's monthly quota,
// allocates the next number and writes the draft:
//
//	q := &document.Document{
//	    UserID:   userID,
//	    Type:     sequence.TypeQuote,
//	    ClientID: clientID,
//	    Lines: []document.Line{{
//	        Description: "Kitchen renovation",
//	        Quantity:    decimal.NewFromInt(1),
//	        UnitPrice:   folio.EUR(450000),
//	        VATRate:     decimal.NewFromInt(20),
//	    }},
//	}
//	err := f.CreateDocument(ctx, q, folio.Actor{PerformedBy: userID})
//	if errors.Is(err, folio.ErrQuotaExceeded) {
//	    // show the upgrade prompt
//	}
//
// Drafts are edited with UpdateDocument and issued with FinalizeDocument.
// Once finalized a document cannot be edited or deleted; attempts return
// ErrImmutableDocument and are recorded in the audit trail.
//
// # Stores
//
// Every counter operation is one atomic conditional update in the backing
// store, so correctness does not depend on a single application process.
// Backends are provided for PostgreSQL, SQLite and MongoDB (through grove),
// Redis, and memory.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	usr_01h2xcejqtf2nbrexx3vqjhp41  // User ID
//	inv_01h455vb4pex5vsknk084sn02q  // Invoice ID
//	quo_01h455vb4pex5vsknk084sn02q  // Quote ID
//	aud_01h455vb4pex5vsknk084sn02q  // Audit entry ID
package folio
