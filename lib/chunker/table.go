// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

// hashTable maps each byte value to a pseudo-random 32-bit constant
// for the buzhash rolling hash. The values are protocol constants:
// changing any entry moves every chunk boundary and invalidates all
// existing version indexes and blocks.
var hashTable = [256]uint32{
	0x3a399390, 0x9e46625d, 0x1eaf60a9, 0xf49483b8,
	0x0391c1ca, 0xb414cbfc, 0xed68c485, 0xbdbb2de2,
	0x4c4fd62c, 0x79b080ea, 0x2a0c3ee9, 0xc7e8dc71,
	0x2f2bdfbc, 0x128dd7dd, 0x40be81be, 0x02fe7927,
	0x9ac08fa5, 0x0dc23426, 0x9bfe1bee, 0x52dd98f6,
	0x66386f25, 0xc41a10f4, 0xb80eb674, 0x3fa25f23,
	0x8b596cdd, 0xa77019c1, 0xc1c7d5e9, 0x5c883df5,
	0x94cca383, 0x096a6256, 0x7389c03e, 0xe69674d2,
	0x47ed6cc9, 0xc6d2e11b, 0x6bb1f322, 0x9f2fae31,
	0x8e7b77e1, 0xa016725a, 0x72993757, 0xba4733bf,
	0x53c0feed, 0x1cea7dca, 0x74745065, 0x93e5a7a3,
	0xd175e4fc, 0x3be46454, 0x36de35f1, 0xa3cceec3,
	0x832ceddf, 0xc1d34e26, 0xc475938e, 0x0462a574,
	0xc2b2e3a2, 0x1e8aeac5, 0x339a3e7b, 0x5aef4ee2,
	0x2d18e8ec, 0x9f316cc4, 0x5185c12b, 0x63acbd2b,
	0xac2ff6d8, 0x2ccecd66, 0xb9a32ccd, 0xdaa02541,
	0x1332dc5a, 0xab044e06, 0x980ee245, 0x0818d15d,
	0x7fef65dc, 0x311541fb, 0xbc244585, 0xc1255c3e,
	0x8eb7d3d1, 0xddd61a34, 0x214d183e, 0x3d0e462c,
	0x93333932, 0x2b60761a, 0xe9b97205, 0x3eee5a44,
	0xa79b2ab6, 0x1e6d5d51, 0x23e447ba, 0x6f01e9a2,
	0x43907496, 0x11f30a5b, 0xc33a9642, 0x10232b54,
	0xf0c57407, 0xffe556f4, 0x3f209a49, 0x10f1696a,
	0x42c3f0c2, 0xf36b3c28, 0xd35111dd, 0x443df463,
	0xa9288856, 0x4a030803, 0xe08e8475, 0xad25197b,
	0xb8c3da66, 0x48a55d40, 0xdfa4bd10, 0x19bbcaec,
	0x62274292, 0xacb25fc2, 0x0e51c730, 0x5ee79164,
	0x3d55b8ff, 0xfaf7f29b, 0x744268c8, 0x5d36f588,
	0x4314e1ce, 0xf9824bd9, 0xf5d9cb7f, 0x1ec4ac40,
	0x0c5e146f, 0xc837e60f, 0x145ef3f0, 0xba5136a1,
	0xd2207256, 0xe736114a, 0x95a667e7, 0x1a6a1e22,
	0xc241ae59, 0x31d60431, 0xf2c44734, 0xeff3fec7,
	0xee8eb6be, 0x4c9ed8c7, 0xb8aa5832, 0x8a4b67f5,
	0x75be15be, 0x713d1ab0, 0xb201855d, 0xbaa323b9,
	0x13bc4bac, 0x3896c812, 0xc8a78ecd, 0x1a7b5078,
	0x921ee458, 0x7866d778, 0xb983092b, 0x638e8074,
	0x6eb663c3, 0xa13933da, 0x0709a3e0, 0xc4db24ef,
	0x85b5781a, 0x8b6752e4, 0x786d814d, 0x5a55c71e,
	0xf01afe9d, 0x17df006f, 0xf9aeec5b, 0x7e57f80c,
	0x95ff805a, 0x54518519, 0x2414faa8, 0x51d6cc9f,
	0x2ba43cf9, 0x6f3e902d, 0x2eb4a27a, 0xb9ce7927,
	0xee0da388, 0x242d1d14, 0xd5d31b11, 0x5e46c31e,
	0xffb81edc, 0x99232714, 0xee023a86, 0x8f843498,
	0xb6378655, 0xb2517b4d, 0x9276d29c, 0xe3c95bfa,
	0x38e06c4d, 0x9acc8f6e, 0xe7ad41ed, 0x93aa785e,
	0xc0e9d44b, 0x0ce8a230, 0x8624ce69, 0x037b187f,
	0xf543d5b7, 0x5b16a8d5, 0xfa6e0fc1, 0x0d97a7dc,
	0x9cfb6685, 0x29bc41db, 0xebfc4a9a, 0xa0714b57,
	0x29d27ee7, 0x134db264, 0x396fd944, 0x9903cd33,
	0x7b6940d1, 0x284a8b56, 0x3e80d3b1, 0x12c47a8c,
	0xc7f52c6e, 0xfb0efba1, 0xec158422, 0xceb53b67,
	0xf4c8767d, 0x4ee5ac0d, 0x967cbd75, 0x221feb3e,
	0xe1ed2aa9, 0x6167e783, 0x0b11b4d3, 0xbddf1448,
	0x71b582ca, 0x92683cc8, 0xfa86a12b, 0x0f8d2040,
	0x57e9840c, 0x2433ea6a, 0xe7733634, 0xb57fd03c,
	0xed631981, 0x07df32e3, 0xda4f8e2d, 0x33d4ed78,
	0x92ec98d1, 0x04313a7b, 0x0e7cc6e1, 0x2e009ef6,
	0x1842ae4b, 0x7475d17c, 0xbb12f6cc, 0x94f5e2cf,
	0x910bd1f4, 0xbebe20af, 0xd18ebedb, 0xd8b210ca,
	0xdacc05af, 0x9f1b0f9e, 0xde85f842, 0xf6983f1b,
	0x65e19690, 0x3debb410, 0x672a0319, 0x9d53179d,
	0xaca944ff, 0x35ee5364, 0x6580f6ec, 0x48bf06fb,
	0xc4be0469, 0xc21f817a, 0x15bb32c8, 0xa762bb2b,
	0xfa88a11d, 0x0770b6d6, 0x032683ef, 0x0406a01a,
}
