/*
Package ports defines the driven ports (interfaces) for the stepflow engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to load its step catalog from various sources, coordinate registry
mutation across replicas, and be driven by different transports.

# Key Interfaces

  - CatalogLoader: Responsible for loading step definitions and flow profiles (e.g., from Loam or Memory).
  - DistributedLocker: Provides distributed locking around registry mutation and session access.
  - Wizard: The inward surface that the HTTP and MCP adapters drive.
*/
package ports
