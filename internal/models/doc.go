// Package models defines the domain types shared by the credential store, providers, the manager and the gallery index.
//
// The package contains two categories of types:
//
// 1. Credential types: what a provider instance needs to talk to its backend
//   - [Credentials] : app key/secret plus the OAuth token pair
//   - [EnvKeys] : the persisted key names for one instance's credentials
//   - [CredentialField] : the closed set of recognized credential fields
//
// 2. Listing and gallery types: what flows from a provider into the merged index
//   - [FileRecord] : one remote file, tagged with its originating instance
//   - [Thumbnail] : a per-item success/error result for thumbnail fetches
//   - [AccountInfo], [StorageUsage] : identity and quota reports
//   - [ListingSnapshot] : bookkeeping for the last listing of an instance
//
// An [InstanceRef] names one provider instance as (provider type, instance index).
// Instance indices are zero-based and dense within a provider type.
package models
