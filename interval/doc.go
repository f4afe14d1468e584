/*Package interval implements half-open integer ranges and interval-union
  operations for query and genomic coordinates.
  (Note the 'union'.  Overlapping ranges added to a Union are merged, not
  tracked separately; use Range slices directly when that is not the desired
  behavior.)
  All coordinates are zero-based; a Range is [Start, End).
*/
package interval
