/*
Package types defines the domain model shared by the dataset cache:
datasets, the products and metadata-types they reference, and the
named groups that collect dataset UUIDs into ordered cohorts.

These types carry no behavior of their own — encoding, compression,
and storage all live in sibling packages (key, compress, storage,
catalog, cache). A Dataset only becomes a MaterializedDataset once
bound to a Product resolved from the in-memory catalog at read time.
*/
package types
