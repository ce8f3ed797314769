package fleetdb

import (
	"github.com/hupe1980/fleetdb/record"
)

// Document owner kinds.
const (
	DocOwnerDriver   uint8 = 1
	DocOwnerVehicle  uint8 = 2
	DocOwnerTrip     uint8 = 3
	DocOwnerExpense  uint8 = 4
	DocOwnerIncident uint8 = 5
)

// AttachDocument records document metadata against an owner entity and
// returns the document id, or 0 on failure. Payloads live outside the
// database file, addressed by the returned id.
func (db *FleetDB) AttachDocument(ownerID uint64, ownerType uint8, filename, mimeType string, fileSize uint64, description string) uint64 {
	doc := record.Document{
		DocumentID: db.nextDocID.Add(1),
		OwnerID:    ownerID,
		OwnerType:  ownerType,
		FileSize:   fileSize,
		UploadDate: db.now(),
	}
	record.SetText(doc.Filename[:], filename)
	record.SetText(doc.MimeType[:], mimeType)
	record.SetText(doc.Description[:], description)

	if !db.store.CreateDocument(&doc) {
		return 0
	}

	db.log.Info("document attached",
		"document_id", doc.DocumentID, "owner_id", ownerID, "filename", filename)
	return doc.DocumentID
}

// GetDocument returns document metadata by id.
func (db *FleetDB) GetDocument(documentID uint64) (record.Document, bool) {
	return db.store.ReadDocument(documentID)
}

// Documents lists the documents attached to an owner entity.
func (db *FleetDB) Documents(ownerID uint64) []record.Document {
	return db.store.DocumentsByOwner(ownerID)
}
