// flatlake turns nested JSON records into flat, strongly typed, columnar
// lake files. It is built around one idea: the schema is a pre-declared,
// versioned contract, never something inferred from whatever data happened
// to show up.
//
// The transform is three dependency-ordered stages:
//
// 1. Schema Contract
//
//    A Contract declares the expected input shape (scalar fields, nested
//    objects, arrays of objects) and the exact output column set with
//    types. Contracts are loaded by version through a Registry and
//    compiled once; structural problems - colliding flattened names,
//    columns not derivable from any input path, more exploded arrays than
//    the policy allows - fail at load time, before any record flows.
//
// 2. Flattening Engine
//
//    A Flattener takes one parsed record and the contract and produces
//    zero or more Rows. Nested objects are projected into the parent row
//    (no row count change); one array field is exploded into one row per
//    element, duplicating the base columns. Values are cast to their
//    declared column types under a strict policy: a wrong-typed value is
//    an error, never a silent null. Flatten is a pure function - no
//    partial output, no state between invocations.
//
// 3. Columnar Encoder
//
//    The parquet sub-package serializes a row set into self-describing
//    Parquet files, one per partition group, with the schema taken from
//    the contract and the compression codec recorded in the file.
//
// A Transformer glues the stages together for callers that hold raw bytes
// and a schema version, and addresses the output deterministically so
// that replaying an input overwrites rather than duplicates. The s3,
// minio and local object stores cover the storage boundary, and the
// ingest package plus the flatlake command run the whole thing over every
// object under a prefix.

package flatlake
