/*
Package domain contains the contract shared by every part of the weft engine.

It defines the vocabulary nodes must speak: port and parameter specifications, node
specifications, the workflow graph, and the per-node execution context and result.
This package is kept pure and free of I/O and persistence, following Hexagonal
Architecture principles; storage and scheduling live in other packages.

# Key Entities

  - NodeSpec: Declares a node type (ports, parameters, cache policy). Immutable after registration.
  - Workflow: The graph submitted for one execution (NodeInstances and Edges).
  - NodeContext: What a node implementation receives (inputs, params, seed, cache root).
  - NodeResult: What a node implementation returns (outputs, metadata, preview, error).
  - RunReport: One NodeOutcome per submitted node, tagged with its terminal Status.
*/
package domain
