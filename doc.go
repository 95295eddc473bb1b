/*
Package sstable contains the write path of an LSM storage engine. It packs a
sorted stream of key/value pairs into an immutable table of size-bounded blocks,
followed by a block index, a bloom filter and two trailing offsets.

All multi-byte integers are stored big-endian.

Data Structure Documentation

Table

A table contains a series of data blocks followed by the block index, the
index offset, the filter and the filter offset.

    Table layout:
    +---------+-----+---------+-------------+------------------------+--------+-------------------------+
    | block 1 | ... | block n | block index | index offset (4 bytes) | filter | filter offset (4 bytes) |
    +---------+-----+---------+-------------+------------------------+--------+-------------------------+

    Block index:
    +----------------------+--------------------+-------------------------+----------------------+------------------------+---------------------+-----+
    | num blocks (4 bytes) | offset 1 (4 bytes) | first key len (2 bytes) | first key 1 (varlen) | last key len (2 bytes) | last key 1 (varlen) | ... |
    +----------------------+--------------------+-------------------------+----------------------+------------------------+---------------------+-----+

    Filter:
    +--------------------------------------+---------------------------+
    | bloom export (optionally compressed) | compression type (1-byte) |
    +--------------------------------------+---------------------------+

Readers locate the filter through the final 4 bytes and the block index through
the 4 bytes immediately preceding the filter.

Block

A block comprises a series of entries, followed by an offset for each entry
and the number of entries. A block never holds more than the configured block
size unless it holds exactly one entry.

    Block layout:
    +---------+-----+---------+--------------------+-----+--------------------+-----------------------+
    | entry 1 | ... | entry n | offset 1 (2 bytes) | ... | offset n (2 bytes) | num entries (2 bytes) |
    +---------+-----+---------+--------------------+-----+--------------------+-----------------------+

Entry

    +-------------------+--------------+---------------------+----------------+
    | key len (2 bytes) | key (varlen) | value len (2 bytes) | value (varlen) |
    +-------------------+--------------+---------------------+----------------+
*/
package sstable
