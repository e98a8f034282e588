// Package simplecatalog provides a reusable library for catalog item
// management where every item is bound to exactly one uploaded image.
//
// It exposes a single Service interface that orchestrates the item
// lifecycle: field validation, image storage through an ImageStore, and
// record persistence through a Repository. Implementations of repositories
// (memory, Postgres, SQLite, Redis) and blob stores (memory, filesystem, S3)
// are provided under subpackages.
//
// Consistency Model
//
// The image blob and the item record live in two independent stores with no
// shared transaction. Creation stores the blob first and only then writes the
// record that references it; if the record cannot be written the blob is
// deleted again (compensation). Removal deletes the record first and then
// makes a best-effort attempt to delete the blob. A record therefore never
// references a missing blob, while a crash between the two steps can leave an
// unreferenced blob behind. No background reconciliation is performed.
package simplecatalog
