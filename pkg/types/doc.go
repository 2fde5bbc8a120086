/*
Package types provides the core interfaces, data structures, and type definitions for GalleryFS.

This package is the foundation of the system: it defines the normalized entity
shapes that every storage provider must produce (Album, AlbumDetail, Image and
their request/update DTOs) and the contracts between components.

# Architecture Overview

GalleryFS follows a layered architecture with well-defined interfaces between
components:

	┌─────────────────────────────────────────────┐
	│              Consumers                      │
	│      (UI proxy, export, maintenance)        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Provider Contract (types.Provider)   │
	└─────────────────────────────────────────────┘
	          │                      │
	┌─────────┴─────────┐  ┌─────────┴─────────┐
	│ Image-Host        │  │ Object-Store      │
	│ Adapter           │  │ Adapter           │
	└───────────────────┘  └─────────┬─────────┘
	                       ┌─────────┴─────────┐
	                       │ Backend (S3)      │
	                       └───────────────────┘

# Core Interfaces

Provider Interface:
The provider-agnostic storage contract. Every backend adapter implements it;
optional capabilities (album rename, legacy id resolution) are modeled as
separate interfaces discovered via Supports plus a type assertion, never via
runtime presence checks.

Backend Interface:
Abstracts flat object storage operations (get/put/delete/copy/list) so the
object-store adapter's consistency logic can be tested against an in-memory
implementation with failure injection.

# Entity Model

Albums are named, ordered collections of images. The album document carries the
authoritative ordered image-id list; an image's OwningAlbum reference must match
exactly one album's list membership. ImageCount must always equal the length of
the image-id list after any successful mutation.
*/
package types
