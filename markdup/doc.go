/*
Package markdup identifies and marks duplicate reads in a coordinate
or queryname sorted SAM/BAM input.

Duplicate Marking Concepts:

Two reads A and B are considered duplicates if their (1) library, (2)
reference, (3) unclipped 5' position, and (4) read direction are ALL
identical.  The 5' position is the unclipped start for a forward
strand read and the unclipped end for a reverse strand read, so
clipping does not hide duplication.

Two pairs P1 and P2 are duplicates of each other if both of their ends
are pairwise duplicates.  Within each pair, the end with the
lexicographically smaller (reference, coordinate) is read1; the
comparison is therefore independent of which mate aligned first.

A single-end read (or a read whose mate is unmapped) can collide with
one end of a full pair at the same 5' position.  In that case the pair
always wins and the single-end read is marked duplicate.  When only
single-end reads collide, the best scoring one survives.

For each set of duplicates, the survivor is the member with the
highest score; by default the score is the sum of base qualities above
14, summed over both ends of a pair.  Ties go to the read pair
encountered first in the input.

Sequencing (optical) duplicates are the subset of duplicates whose
flowcell positions lie within a configurable pixel distance of another
member of the same set.  They are counted separately in the metrics,
can be tagged DT:Z:SQ, and can be dropped from the output
independently of the remaining (library) duplicates.

Implementation:

The engine makes three passes.

The first pass streams the input once and builds two externally sorted
collections of fixed-width signatures: one fragment signature per
primary mapped read, and one pair signature per completed mate pair.
Mate pairs are matched through a spill-capable map keyed by (mate
reference index, read group qualified name), so only the unmatched
half of the pairs near the stream head occupies memory.  The signature
collections spill sorted, compressed runs to temporary files whenever
their memory budget fills.

The second pass merges each collection back in sorted order, so all
signatures that can possibly be duplicates of each other arrive
adjacently.  Maximal runs of equivalent signatures are scored, the
winner chosen, and every loser's file index is appended to a sorted
index collection.  Optical classification runs per chunk against the
chosen winner.  Three index streams come out of this pass: all
duplicates, optical duplicates, and representative-read tuples.

The third pass re-streams the input in its original order alongside
the three sorted index streams.  A cursor per stream answers, in O(1)
amortized per record, whether the current file position is a
duplicate, an optical duplicate, or a duplicate set member; the
record's flag and optional DT, RR, and DS tags are updated and the
record written out.  Input order is preserved exactly.

Under queryname ordering, every record sharing a query name carries
the file index of the first record with that name, and the cursors
treat an index match as sticky while the query name is unchanged.
This is how secondary and supplementary alignments inherit the
duplicate decision made for their primary.
*/
package markdup
