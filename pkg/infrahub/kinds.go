/*
 * Copyright (c) 2024, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package infrahub

// Kinds of the objects read and written by the generators
const (
	KindDataCenter        = "TopologyDataCenter"
	KindPod               = "TopologyPod"
	KindRack              = "LocationRack"
	KindDesignPattern     = "TopologyDesignPattern"
	KindDeviceTemplate    = "TemplateDcimDevice"
	KindInterfaceTemplate = "TemplateDcimInterface"
	KindDevice            = "DcimDevice"
	KindInterface         = "DcimInterface"
	KindCable             = "DcimCable"
	KindIPAddress         = "IpamIPAddress"
	KindIPPrefix          = "IpamIPPrefix"
	KindAddressPool       = "CoreIPAddressPool"
	KindPrefixPool        = "CoreIPPrefixPool"
)

// Attribute names
const (
	AttrName         = "name"
	AttrIndex        = "index"
	AttrRole         = "role"
	AttrStatus       = "status"
	AttrDescription  = "description"
	AttrChecksum     = "checksum"
	AttrAddress      = "address"
	AttrPrefix       = "prefix"
	AttrRackType     = "rack_type"
	AttrSuperSpines  = "amount_of_super_spines"
	AttrSpines       = "amount_of_spines"
	AttrLeafs        = "amount_of_leafs"
	AttrTors         = "amount_of_tors"
	AttrMaxSuper     = "maximum_super_spines"
	AttrMaxSpines    = "maximum_spines"
	AttrMaxPods      = "maximum_pods"
	AttrMaxLeafs     = "maximum_leafs"
	AttrMaxTors      = "maximum_tors"
	AttrMaxRacks     = "maximum_racks"
	AttrPlatform     = "platform"
	AttrMemberType   = "member_type"
	AttrPrefixLength = "default_prefix_length"
)

// Relationship names
const (
	RelParent         = "parent"
	RelPod            = "pod"
	RelDesignPattern  = "design_pattern"
	RelLocation       = "location"
	RelTemplate       = "template"
	RelDevice         = "device"
	RelCable          = "cable"
	RelEndpoints      = "endpoints"
	RelPrimaryAddress = "primary_address"
	RelLoopbackPool   = "loopback_pool"
	RelManagementPool = "management_pool"
	RelSuperSpineTmpl = "super_spine_template"
	RelSpineTmpl      = "spine_template"
	RelLeafTmpl       = "leaf_template"
	RelTorTmpl        = "tor_template"
	RelInterface      = "interface"
	RelPool           = "pool"
)

// Device roles
const (
	RoleSuperSpine = "super_spine"
	RoleSpine      = "spine"
	RoleLeaf       = "leaf"
	RoleTor        = "tor"
)

// Interface roles
const (
	RoleUplink     = "uplink"
	RoleDownlink   = "downlink"
	RoleLoopback   = "loopback"
	RoleManagement = "management"
	RoleAccess     = "access"
)

const (
	StatusActive  = "active"
	StatusPlanned = "planned"
)
