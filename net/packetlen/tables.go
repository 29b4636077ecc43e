package packetlen

import (
	tnet "badc0de.net/pkg/go-ragnarok/net"
)

const varlen = tnet.Variable

// Lengths below exclude the packet id and, for variable packets, the explicit
// length field.
//
// The tables are a representative subset: the login, character selection and
// basic zone packets, plus one or two ids per year to mark where revisions
// diverge. They are not complete per-revision tables; ids missing here frame
// as unknown.

var lengths2003 = map[uint16]int{
	0x0064: 53,     // CA_LOGIN
	0x0065: 15,     // CH_ENTER
	0x0066: 1,      // CH_SELECT_CHAR
	0x0067: 35,     // CH_MAKE_CHAR
	0x0068: 44,     // CH_DELETE_CHAR
	0x0069: varlen, // AC_ACCEPT_LOGIN
	0x006a: 21,     // AC_REFUSE_LOGIN
	0x006b: varlen, // HC_ACCEPT_ENTER
	0x006c: 1,      // HC_REFUSE_ENTER
	0x006d: 106,    // HC_ACCEPT_MAKECHAR
	0x006e: 1,      // HC_REFUSE_MAKECHAR
	0x006f: 0,      // HC_ACCEPT_DELETECHAR
	0x0070: 1,      // HC_REFUSE_DELETECHAR
	0x0071: 26,     // HC_NOTIFY_ZONESVR
	0x0072: 17,     // CZ_ENTER
	0x0073: 9,      // ZC_ACCEPT_ENTER
	0x0074: 1,      // ZC_REFUSE_ENTER
	0x007d: 0,      // CZ_NOTIFY_ACTORINIT
	0x007e: 4,      // CZ_REQUEST_TIME
	0x007f: 4,      // ZC_NOTIFY_TIME
	0x0080: 5,      // ZC_NOTIFY_VANISH
	0x0081: 1,      // SC_NOTIFY_BAN
	0x0085: 3,      // CZ_REQUEST_MOVE
	0x0087: 10,     // ZC_NOTIFY_PLAYERMOVE
	0x008c: varlen, // CZ_REQUEST_CHAT
	0x008d: varlen, // ZC_NOTIFY_CHAT
	0x008e: varlen, // ZC_NOTIFY_PLAYERCHAT
	0x0187: 4,      // PING
	0x01dd: 45,     // CA_LOGIN2
	0x0200: 24,     // CA_CONNECT_INFO_CHANGED
}

// derive builds a loader from the previous bucket's loader plus additions and
// removals. The result is a fresh map; buckets never share state.
func derive(prev func(int) map[uint16]int, add map[uint16]int, drop ...uint16) func(int) map[uint16]int {
	return func(version int) map[uint16]int {
		out := prev(version)
		for id, n := range add {
			out[id] = n
		}
		for _, id := range drop {
			delete(out, id)
		}
		return out
	}
}

func load2003(int) map[uint16]int {
	out := make(map[uint16]int, len(lengths2003))
	for id, n := range lengths2003 {
		out[id] = n
	}
	return out
}

var (
	load2004 = derive(load2003, map[uint16]int{
		0x0204: 16, // CA_EXE_HASHCHECK
	})
	load2005 = derive(load2004, map[uint16]int{
		0x0229: 13, // ZC_STATE_CHANGE3
	})
	load2006 = derive(load2005, map[uint16]int{
		0x0283: 4, // ZC_AID
	})
	load2007 = derive(load2006, map[uint16]int{
		0x02eb: 11, // ZC_ACCEPT_ENTER2
	})
	load2008 = derive(load2007, map[uint16]int{
		0x0436: 17, // CZ_ENTER2
	})
	load2009 = derive(load2008, map[uint16]int{
		0x07d9: 266, // ZC_SHORTCUT_KEY_LIST_V2
	})
	load2010 = derive(load2009, map[uint16]int{
		0x0825: varlen, // CA_SSO_LOGIN_REQ
	})
	load2011 = derive(load2010, map[uint16]int{
		0x08b9: 10, // HC_SECOND_PASSWD_LOGIN
	})
	load2012 = derive(load2011, map[uint16]int{
		0x08d0: 7, // ZC_REQ_WEAR_EQUIP_ACK
	})
	load2013 = derive(load2012, map[uint16]int{
		0x097a: varlen, // ZC_ALL_QUEST_LIST2
	})
	load2014 = func(version int) map[uint16]int {
		out := derive(load2013, map[uint16]int{
			0x09a1: 0, // CH_CHARLIST_REQ
		})(version)
		if version >= 20141022 {
			out[0x09a0] = 4 // HC_CHARLIST_NOTIFY
		}
		return out
	}
	load2015 = derive(load2014, map[uint16]int{
		0x09a0: 4,  // HC_CHARLIST_NOTIFY
		0x0a18: 12, // ZC_ACCEPT_ENTER3
	})
	load2016 = derive(load2015, map[uint16]int{
		0x0ac4: varlen, // AC_ACCEPT_LOGIN3
		0x0ac5: 154,    // HC_NOTIFY_ZONESVR2
	})
	load2017 = derive(load2016, map[uint16]int{
		0x0acb: 10, // ZC_PAR_CHANGE2
	})
	load2018 = derive(load2017, map[uint16]int{
		0x0adf: 56, // ZC_REQNAME_TITLE
	})
	load2019 = derive(load2018, map[uint16]int{
		0x0b18: 2, // ZC_INVENTORY_EXPANSION_RESULT
	})
	load2020 = derive(load2019, map[uint16]int{
		0x0b6f: 175, // HC_ACCEPT_MAKECHAR
	}, 0x006d)
	load2021 = derive(load2020, map[uint16]int{
		0x0b72: 175, // HC_UPDATE_CHARINFO
	})
	load2022 = derive(load2021, map[uint16]int{
		0x0b7c: varlen, // ZC_ALL_QUEST_LIST4
	})
)

// Buckets are the yearly buckets known to this client, in ascending order.
var Buckets = []Bucket{
	{20030000, load2003},
	{20040000, load2004},
	{20050000, load2005},
	{20060000, load2006},
	{20070000, load2007},
	{20080000, load2008},
	{20090000, load2009},
	{20100000, load2010},
	{20110000, load2011},
	{20120000, load2012},
	{20130000, load2013},
	{20140000, load2014},
	{20150000, load2015},
	{20160000, load2016},
	{20170000, load2017},
	{20180000, load2018},
	{20190000, load2019},
	{20200000, load2020},
	{20210000, load2021},
	{20220000, load2022},
}
